package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Tnze/go-mc/nbt"
	"github.com/google/uuid"
)

// PacketBuilder constructs packet payloads in big-endian wire order.
// Writes are chained; the first encoding failure is kept and reported by Err.
type PacketBuilder struct {
	buf     bytes.Buffer
	scratch [binary.MaxVarintLen64]byte
	err     error
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
	b.err = nil
}

// Err returns the first error recorded by a write.
func (b *PacketBuilder) Err() error {
	return b.err
}

func (b *PacketBuilder) WriteUint8(v uint8) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

func (b *PacketBuilder) WriteInt8(v int8) *PacketBuilder {
	return b.WriteUint8(uint8(v))
}

// WriteBool writes 1 for true and 0 for false.
func (b *PacketBuilder) WriteBool(v bool) *PacketBuilder {
	if v {
		return b.WriteUint8(1)
	}
	return b.WriteUint8(0)
}

func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	binary.BigEndian.PutUint16(b.scratch[:2], v)
	b.buf.Write(b.scratch[:2])
	return b
}

func (b *PacketBuilder) WriteInt16(v int16) *PacketBuilder {
	return b.WriteUint16(uint16(v))
}

func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	binary.BigEndian.PutUint32(b.scratch[:4], v)
	b.buf.Write(b.scratch[:4])
	return b
}

func (b *PacketBuilder) WriteInt32(v int32) *PacketBuilder {
	return b.WriteUint32(uint32(v))
}

func (b *PacketBuilder) WriteUint64(v uint64) *PacketBuilder {
	binary.BigEndian.PutUint64(b.scratch[:8], v)
	b.buf.Write(b.scratch[:8])
	return b
}

func (b *PacketBuilder) WriteInt64(v int64) *PacketBuilder {
	return b.WriteUint64(uint64(v))
}

func (b *PacketBuilder) WriteFloat32(v float32) *PacketBuilder {
	return b.WriteUint32(math.Float32bits(v))
}

func (b *PacketBuilder) WriteFloat64(v float64) *PacketBuilder {
	return b.WriteUint64(math.Float64bits(v))
}

func (b *PacketBuilder) WriteUint128(v Uint128) *PacketBuilder {
	return b.WriteUint64(v.Hi).WriteUint64(v.Lo)
}

func (b *PacketBuilder) WriteInt128(v Int128) *PacketBuilder {
	return b.WriteUint64(uint64(v.Hi)).WriteUint64(v.Lo)
}

// WriteVarInt writes v in minimal VarInt form.
func (b *PacketBuilder) WriteVarInt(v int32) *PacketBuilder {
	b.buf.Write(AppendVarInt(b.scratch[:0], v))
	return b
}

// WriteString writes a VarInt byte length followed by the UTF-8 bytes.
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	b.WriteVarInt(int32(len(s)))
	b.buf.WriteString(s)
	return b
}

// WriteUUID writes the 16 raw bytes of id, most significant first.
func (b *PacketBuilder) WriteUUID(id uuid.UUID) *PacketBuilder {
	b.buf.Write(id[:])
	return b
}

// WriteNBT encodes v as an unnamed root compound.
func (b *PacketBuilder) WriteNBT(v any) *PacketBuilder {
	if b.err != nil {
		return b
	}
	if err := nbt.NewEncoder(&b.buf).Encode(v, ""); err != nil {
		b.err = fmt.Errorf("failed to encode nbt: %w", err)
	}
	return b
}

// Build returns the constructed payload bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// Len returns the current size of the payload being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}
