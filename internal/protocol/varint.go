package protocol

import (
	"errors"
	"fmt"
	"io"
)

// MaxVarIntLen is the longest encoding of a 32-bit VarInt.
const MaxVarIntLen = 5

// ReadVarInt decodes a VarInt from r. It returns the value and the number of
// bytes consumed. It never reads more than MaxVarIntLen bytes; a fifth byte
// with the continuation bit set yields ErrMalformedVarInt.
func ReadVarInt(r io.ByteReader) (int32, int, error) {
	var result uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, i, fmt.Errorf("failed to read varint byte %d: %w", i, ErrTruncated)
			}
			return 0, i, fmt.Errorf("failed to read varint byte %d: %w", i, err)
		}
		result |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int32(result), i + 1, nil
		}
	}
	return 0, MaxVarIntLen, ErrMalformedVarInt
}

// AppendVarInt appends the minimal VarInt encoding of v to dst.
// Negative values are encoded as their unsigned 32-bit pattern and take 5 bytes.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// VarIntSize returns the encoded length of v in bytes.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
