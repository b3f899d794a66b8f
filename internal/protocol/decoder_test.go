package protocol

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDecoderPrimitives(t *testing.T) {
	b := NewPacketBuilder()
	b.WriteUint8(0xAB).
		WriteInt8(-5).
		WriteBool(true).
		WriteUint16(25565).
		WriteInt16(-2).
		WriteUint32(0xDEADBEEF).
		WriteInt32(math.MinInt32).
		WriteUint64(math.MaxUint64).
		WriteInt64(-42).
		WriteFloat32(1.5).
		WriteFloat64(-0.25).
		WriteUint128(Uint128{Hi: 1, Lo: 2}).
		WriteInt128(Int128{Hi: -1, Lo: math.MaxUint64}).
		WriteVarInt(300).
		WriteString("héllo")
	require.NoError(t, b.Err())

	d := NewDecoder(b.Build())

	u8, err := d.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), u8)

	i8, err := d.Int8()
	require.NoError(t, err)
	assert.Equal(t, int8(-5), i8)

	flag, err := d.Bool()
	require.NoError(t, err)
	assert.True(t, flag)

	u16, err := d.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(25565), u16)

	i16, err := d.Int16()
	require.NoError(t, err)
	assert.Equal(t, int16(-2), i16)

	u32, err := d.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	i32, err := d.Int32()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), i32)

	u64, err := d.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), u64)

	i64, err := d.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), i64)

	f32, err := d.Float32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	f64, err := d.Float64()
	require.NoError(t, err)
	assert.Equal(t, -0.25, f64)

	u128, err := d.Uint128()
	require.NoError(t, err)
	assert.Equal(t, Uint128{Hi: 1, Lo: 2}, u128)

	i128, err := d.Int128()
	require.NoError(t, err)
	assert.Equal(t, Int128{Hi: -1, Lo: math.MaxUint64}, i128)

	vi, err := d.VarInt()
	require.NoError(t, err)
	assert.Equal(t, int32(300), vi)

	s, err := d.String()
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	assert.Zero(t, d.Remaining())
}

func TestBigEndianLayout(t *testing.T) {
	b := NewPacketBuilder().WriteUint16(0x0102).WriteInt32(-2)
	assert.Equal(t, []byte{0x01, 0x02, 0xFF, 0xFF, 0xFF, 0xFE}, b.Build())
}

func TestDecoderBoolNonzero(t *testing.T) {
	v, err := NewDecoder([]byte{0x7F}).Bool()
	require.NoError(t, err)
	assert.True(t, v)
}

func TestDecoderTruncated(t *testing.T) {
	d := NewDecoder([]byte{0x01, 0x02, 0x03})
	_, err := d.Uint32()
	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 3, d.Remaining(), "failed read must not advance")
}

func TestDecoderStringErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short_body", []byte{0x05, 'a', 'b'}, ErrTruncated},
		{"invalid_utf8", []byte{0x02, 0xC3, 0x28}, ErrInvalidUTF8},
		{"negative_length", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}, ErrNegativeLength},
		{"missing_length", nil, ErrTruncated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecoder(tc.data)
			_, err := d.String()
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, len(tc.data), d.Remaining())
		})
	}
}

func TestWriteUUID(t *testing.T) {
	b := NewPacketBuilder().WriteUUID(uuid.Nil)
	assert.Equal(t, make([]byte, 16), b.Build())

	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	d := NewDecoder(NewPacketBuilder().WriteUUID(id).Build())
	v, err := d.Uint128()
	require.NoError(t, err)
	assert.Equal(t, Uint128{Hi: 0x0011223344556677, Lo: 0x8899AABBCCDDEEFF}, v)
}

func TestBuilderReset(t *testing.T) {
	b := NewPacketBuilder().WriteString("abc")
	b.Reset()
	assert.Zero(t, b.Len())
	assert.NoError(t, b.Err())
}
