package codec

import "encoding/binary"

// appendUTF8String appends a length-prefixed UTF-8 string field.
func appendUTF8String(dst []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, s...)
}

// appendBinaryData appends a length-prefixed opaque byte field.
func appendBinaryData(dst []byte, b []byte) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

func appendUint16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// readUTF8String reads a length-prefixed UTF-8 string from the front of
// data, validating it per MQTT's UTF-8 rules. Returns the string, bytes
// consumed, and an error.
func readUTF8String(data []byte) (string, int, error) {
	if len(data) < 2 {
		return "", 0, ErrMalformedRemainingLength
	}
	n := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+n {
		return "", 0, ErrMalformedRemainingLength
	}
	field := data[2 : 2+n]
	if err := ValidateUTF8String(field); err != nil {
		return "", 0, err
	}
	return string(field), 2 + n, nil
}

// readBinaryData reads a length-prefixed opaque byte field.
func readBinaryData(data []byte) ([]byte, int, error) {
	if len(data) < 2 {
		return nil, 0, ErrMalformedRemainingLength
	}
	n := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+n {
		return nil, 0, ErrMalformedRemainingLength
	}
	out := make([]byte, n)
	copy(out, data[2:2+n])
	return out, 2 + n, nil
}

func readUint16(data []byte) (uint16, int, error) {
	if len(data) < 2 {
		return 0, 0, ErrMalformedRemainingLength
	}
	return binary.BigEndian.Uint16(data[:2]), 2, nil
}
