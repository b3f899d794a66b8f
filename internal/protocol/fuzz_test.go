package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

// FuzzVarInt checks that every int32 survives an encode/decode round trip and
// that the encoding is exactly VarIntSize bytes.
// Run with: go test -fuzz='^FuzzVarInt$' -fuzztime=60s ./internal/protocol
func FuzzVarInt(f *testing.F) {
	for _, v := range []int32{0, 1, 127, 128, 255, 16383, 16384, 2097151, 2097152, math.MaxInt32, -1, math.MinInt32} {
		f.Add(v)
	}

	f.Fuzz(func(t *testing.T, v int32) {
		enc := AppendVarInt(nil, v)
		if len(enc) != VarIntSize(v) {
			t.Fatalf("VarIntSize(%d) = %d, encoded %d bytes", v, VarIntSize(v), len(enc))
		}
		if v < 0 && len(enc) != MaxVarIntLen {
			t.Fatalf("negative %d encoded in %d bytes", v, len(enc))
		}

		got, n, err := ReadVarInt(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v || n != len(enc) {
			t.Fatalf("round trip %d: got %d after %d bytes", v, got, n)
		}
	})
}

// FuzzFrameRoundTrip checks that any id and payload come back unchanged.
func FuzzFrameRoundTrip(f *testing.F) {
	f.Add(int32(0), []byte{})
	f.Add(int32(0x01), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	f.Add(int32(0x26), bytes.Repeat([]byte{0xAA}, 300))
	f.Add(int32(math.MaxInt32), []byte("x"))

	f.Fuzz(func(t *testing.T, id int32, payload []byte) {
		if id < 0 || VarIntSize(id)+len(payload) > MaxFrameLength {
			t.Skip()
		}

		var buf bytes.Buffer
		if err := WriteFrame(&buf, id, payload); err != nil {
			t.Fatalf("write: %v", err)
		}
		frame, err := ReadFrame(reader(buf.Bytes()))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.ID != id || !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("round trip mismatch: id %d/%d, payload %d/%d bytes", frame.ID, id, len(frame.Payload), len(payload))
		}
	})
}

var frameErrors = []error{
	ErrConnectionClosed,
	ErrTruncated,
	ErrMalformedVarInt,
	ErrNegativeLength,
	ErrEmptyFrame,
	ErrFrameTooLarge,
}

// FuzzReadFrame feeds arbitrary bytes to the frame reader. It must never
// panic, and every failure must be one of the codec's sentinel errors.
func FuzzReadFrame(f *testing.F) {
	f.Add([]byte{})
	f.Add(AppendFrame(nil, 0x00, []byte{0x01}))
	f.Add(frames(AppendFrame(nil, 0x00, nil), AppendFrame(nil, 0x01, []byte{1, 2, 3, 4, 5, 6, 7, 8})))
	f.Add([]byte{0x00})
	f.Add([]byte{0x80})
	f.Add([]byte{0x05, 0x00, 0x01})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	f.Add([]byte{0x05, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	f.Add(AppendVarInt(nil, MaxFrameLength+1))

	f.Fuzz(func(t *testing.T, data []byte) {
		r := reader(data)
		for {
			frame, err := ReadFrame(r)
			if err != nil {
				for _, want := range frameErrors {
					if errors.Is(err, want) {
						return
					}
				}
				t.Fatalf("unexpected error: %v", err)
			}
			if len(frame.Payload) >= MaxFrameLength {
				t.Fatalf("payload of %d bytes exceeds frame limit", len(frame.Payload))
			}
		}
	})
}

func frames(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
