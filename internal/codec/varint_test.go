package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVariableByteInteger(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected uint32
		consumed int
		wantErr  error
	}{
		{name: "zero", input: []byte{0x00}, expected: 0, consumed: 1},
		{name: "max_single_byte", input: []byte{0x7F}, expected: 127, consumed: 1},
		{name: "min_two_byte", input: []byte{0x80, 0x01}, expected: 128, consumed: 2},
		{name: "max_two_byte", input: []byte{0xFF, 0x7F}, expected: 16383, consumed: 2},
		{name: "max_four_byte", input: []byte{0xFF, 0xFF, 0xFF, 0x7F}, expected: 268435455, consumed: 4},
		{name: "fifth_continuation_byte_is_malformed", input: []byte{0xFF, 0xFF, 0xFF, 0x80, 0x01}, wantErr: ErrMalformedRemainingLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, n, err := DecodeVariableByteInteger(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, value)
			assert.Equal(t, tt.consumed, n)
		})
	}
}

func TestDecodeVariableByteIntegerNeedsMoreData(t *testing.T) {
	_, _, err := DecodeVariableByteInteger([]byte{0x80})
	require.ErrorIs(t, err, ErrNeedMoreData)
}

func TestEncodeDecodeVariableByteIntegerRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, 268435455} {
		encoded, err := EncodeVariableByteInteger(nil, v)
		require.NoError(t, err)

		decoded, n, err := DecodeVariableByteInteger(encoded)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
		assert.Equal(t, len(encoded), n)
	}
}

func TestEncodeVariableByteIntegerTooLarge(t *testing.T) {
	_, err := EncodeVariableByteInteger(nil, MaxVariableByteInteger+1)
	require.ErrorIs(t, err, ErrMalformedRemainingLength)
}
