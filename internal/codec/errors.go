package codec

import "github.com/cockroachdb/errors"

// Sentinel errors produced by the wire codec. Every one of these maps to
// spec.md's MalformedPacket error kind at the session layer, except
// ErrNeedMoreData, which is not an error condition at all: it tells the
// decode loop to wait for more bytes.
var (
	ErrNeedMoreData            = errors.New("codec: need more data")
	ErrInvalidType             = errors.New("codec: invalid packet type")
	ErrInvalidReservedType     = errors.New("codec: reserved packet type (0) not allowed")
	ErrInvalidFlags            = errors.New("codec: invalid flags for packet type")
	ErrInvalidQoS              = errors.New("codec: invalid QoS level")
	ErrMalformedRemainingLength = errors.New("codec: malformed remaining length")
	ErrInvalidUTF8             = errors.New("codec: invalid UTF-8 string")
	ErrNullCharacter           = errors.New("codec: null character in string")
	ErrSurrogateCodePoint      = errors.New("codec: UTF-16 surrogate in string")
	ErrNonCharacterCodePoint   = errors.New("codec: non-character code point in string")
	ErrInvalidProtocolName     = errors.New("codec: protocol name must be MQTT")
	ErrInvalidProtocolLevel    = errors.New("codec: protocol level must be 4")
	ErrInvalidReturnCode       = errors.New("codec: invalid CONNACK return code")
)
