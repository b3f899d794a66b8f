package protocol

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		value   int32
		encoded []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"one", 1, []byte{0x01}},
		{"max_1byte", 127, []byte{0x7F}},
		{"min_2byte", 128, []byte{0x80, 0x01}},
		{"255", 255, []byte{0xFF, 0x01}},
		{"default_port", 25565, []byte{0xDD, 0xC7, 0x01}},
		{"max_3byte", 2097151, []byte{0xFF, 0xFF, 0x7F}},
		{"max_int32", math.MaxInt32, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07}},
		{"neg_one", -1, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
		{"min_int32", math.MinInt32, []byte{0x80, 0x80, 0x80, 0x80, 0x08}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := AppendVarInt(nil, tc.value)
			assert.Equal(t, tc.encoded, encoded)
			assert.Equal(t, len(tc.encoded), VarIntSize(tc.value))

			v, n, err := ReadVarInt(bytes.NewReader(encoded))
			require.NoError(t, err)
			assert.Equal(t, tc.value, v)
			assert.Equal(t, len(encoded), n)
		})
	}
}

func TestVarIntNegativeAlwaysFiveBytes(t *testing.T) {
	for _, v := range []int32{-1, -2, -128, -25565, math.MinInt32} {
		assert.Len(t, AppendVarInt(nil, v), MaxVarIntLen, "value %d", v)
	}
}

func TestReadVarIntMalformed(t *testing.T) {
	r := bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01})

	_, n, err := ReadVarInt(r)
	require.ErrorIs(t, err, ErrMalformedVarInt)
	assert.Equal(t, MaxVarIntLen, n)
	assert.Equal(t, 1, r.Len(), "sixth byte must not be consumed")
}

func TestReadVarIntTruncated(t *testing.T) {
	_, n, err := ReadVarInt(bytes.NewReader([]byte{0x80, 0x80}))
	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 2, n)

	_, n, err = ReadVarInt(bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 0, n)
}
