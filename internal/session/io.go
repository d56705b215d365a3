package session

import (
	"bufio"
	"io"
	"net"

	"github.com/telemq/telemq/internal/codec"
)

// Conn is the per-connection transport surface a Session drives. Satisfied
// by *internal/network.Connection (TCP, TLS, or WebSocket).
type Conn interface {
	io.Reader
	io.Writer
	RemoteAddr() net.Addr
	Close() error
}

// readFrame reads exactly one MQTT control packet's bytes (fixed header
// plus variable header/payload) off r, per spec.md §4.1's remaining-length
// framing. It reads the length prefix byte-by-byte rather than relying on
// codec.DecodeFixedHeader's partial-buffer tolerance, since r is a live
// stream rather than an already-buffered slice.
func readFrame(r *bufio.Reader) ([]byte, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	frame := []byte{first}

	var remaining uint32
	var multiplier uint32 = 1
	for i := 0; ; i++ {
		if i == 4 {
			return nil, codec.ErrMalformedRemainingLength
		}
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, b)
		remaining += uint32(b&0x7F) * multiplier
		if b&0x80 == 0 {
			break
		}
		multiplier *= 128
	}

	if remaining > 0 {
		body := make([]byte, remaining)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		frame = append(frame, body...)
	}

	return frame, nil
}

// readPacket reads and decodes exactly one packet from r.
func readPacket(r *bufio.Reader) (codec.Packet, error) {
	frame, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	pkt, _, err := codec.Decode(frame)
	return pkt, err
}

// writePacket encodes pkt and writes it to w.
func writePacket(w io.Writer, pkt interface{ Encode() ([]byte, error) }) error {
	data, err := pkt.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
