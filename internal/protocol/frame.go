package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength is the largest body a frame may declare: the biggest value a
// 3-byte VarInt can hold.
const MaxFrameLength = 2097151

// RawFrame is one delimited packet: its phase-relative id and payload.
type RawFrame struct {
	ID      int32
	Payload []byte
}

// ReadFrame reads one frame from r.
// Frame format: [length:VarInt][id:VarInt][payload...], where length covers id and payload.
// A clean EOF before the first length byte returns ErrConnectionClosed; an EOF
// anywhere later returns ErrTruncated.
func ReadFrame(r *bufio.Reader) (RawFrame, error) {
	length, n, err := ReadVarInt(r)
	if err != nil {
		if n == 0 && errors.Is(err, ErrTruncated) {
			return RawFrame{}, ErrConnectionClosed
		}
		return RawFrame{}, fmt.Errorf("failed to read frame length: %w", err)
	}
	if length < 0 {
		return RawFrame{}, fmt.Errorf("failed to read frame: length %d: %w", length, ErrNegativeLength)
	}
	if length == 0 {
		// a frame always carries at least its packet id
		return RawFrame{}, fmt.Errorf("failed to read frame: %w", ErrEmptyFrame)
	}
	if length > MaxFrameLength {
		return RawFrame{}, fmt.Errorf("failed to read frame: length %d (max %d): %w", length, MaxFrameLength, ErrFrameTooLarge)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return RawFrame{}, fmt.Errorf("failed to read frame body (%d bytes): %w", length, ErrTruncated)
		}
		return RawFrame{}, fmt.Errorf("failed to read frame body (%d bytes): %w", length, err)
	}

	d := NewDecoder(body)
	id, err := d.VarInt()
	if err != nil {
		return RawFrame{}, fmt.Errorf("failed to read packet id: %w", err)
	}
	return RawFrame{ID: id, Payload: d.Rest()}, nil
}

// AppendFrame appends a complete frame for id and payload to dst.
func AppendFrame(dst []byte, id int32, payload []byte) []byte {
	dst = AppendVarInt(dst, int32(VarIntSize(id)+len(payload)))
	dst = AppendVarInt(dst, id)
	return append(dst, payload...)
}

// WriteFrame writes a frame to w with a single Write call so frames from
// one writer never interleave.
func WriteFrame(w io.Writer, id int32, payload []byte) error {
	frame := AppendFrame(make([]byte, 0, MaxVarIntLen*2+len(payload)), id, payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame 0x%02x (%d bytes): %w", id, len(frame), err)
	}
	return nil
}
