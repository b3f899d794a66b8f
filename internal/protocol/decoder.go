package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// Uint128 is an unsigned 128-bit big-endian integer split into two halves.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Int128 is a signed 128-bit big-endian integer. The sign lives in Hi.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Decoder reads protocol primitives from an in-memory packet payload.
// Every read either consumes the full value or returns an error wrapping
// ErrTruncated and leaves the cursor where it was.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder creates a decoder positioned at the start of data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: data}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Rest returns the unread bytes and advances to the end.
func (d *Decoder) Rest() []byte {
	b := d.buf[d.off:]
	d.off = len(d.buf)
	return b
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if d.Remaining() < n {
		return nil, fmt.Errorf("need %d bytes, have %d: %w", n, d.Remaining(), ErrTruncated)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// ReadByte implements io.ByteReader so VarInts can be decoded in place.
func (d *Decoder) ReadByte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, io.EOF
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, fmt.Errorf("failed to read u8: %w", err)
	}
	return b[0], nil
}

func (d *Decoder) Int8() (int8, error) {
	v, err := d.Uint8()
	return int8(v), err
}

// Bool reads one byte; any nonzero value is true.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	return v != 0, err
}

func (d *Decoder) Uint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, fmt.Errorf("failed to read u16: %w", err)
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, fmt.Errorf("failed to read u32: %w", err)
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, fmt.Errorf("failed to read u64: %w", err)
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

func (d *Decoder) Uint128() (Uint128, error) {
	b, err := d.take(16)
	if err != nil {
		return Uint128{}, fmt.Errorf("failed to read u128: %w", err)
	}
	return Uint128{Hi: binary.BigEndian.Uint64(b[:8]), Lo: binary.BigEndian.Uint64(b[8:])}, nil
}

func (d *Decoder) Int128() (Int128, error) {
	v, err := d.Uint128()
	return Int128{Hi: int64(v.Hi), Lo: v.Lo}, err
}

// VarInt reads a VarInt. On failure the cursor is restored.
func (d *Decoder) VarInt() (int32, error) {
	start := d.off
	v, _, err := ReadVarInt(d)
	if err != nil {
		d.off = start
		return 0, err
	}
	return v, nil
}

// String reads a VarInt byte length followed by that many UTF-8 bytes.
func (d *Decoder) String() (string, error) {
	start := d.off
	n, err := d.VarInt()
	if err != nil {
		return "", fmt.Errorf("failed to read string length: %w", err)
	}
	b, err := d.take(int(n))
	if err != nil {
		d.off = start
		return "", fmt.Errorf("failed to read string body: %w", err)
	}
	if !utf8.Valid(b) {
		d.off = start
		return "", fmt.Errorf("failed to read string: %w", ErrInvalidUTF8)
	}
	return string(b), nil
}

// Bytes reads exactly n raw bytes.
func (d *Decoder) Bytes(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, fmt.Errorf("failed to read %d bytes: %w", n, err)
	}
	return b, nil
}
