package protocol

import (
	"errors"
	"os"
)

// Decode and frame errors. Callers match them with errors.Is; the codec
// always wraps them with context.
var (
	ErrTruncated        = errors.New("input ended before value was complete")
	ErrConnectionClosed = errors.New("connection closed by peer")
	ErrMalformedVarInt  = errors.New("varint longer than 5 bytes")
	ErrInvalidUTF8      = errors.New("string is not valid utf-8")
	ErrNegativeLength   = errors.New("negative length prefix")
	ErrEmptyFrame       = errors.New("frame length is zero")
	ErrFrameTooLarge    = errors.New("frame exceeds maximum length")
)

// Reason maps an error to a short label for logs and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	case errors.Is(err, ErrTruncated):
		return "truncated"
	case errors.Is(err, ErrMalformedVarInt):
		return "malformed_varint"
	case errors.Is(err, ErrInvalidUTF8):
		return "invalid_utf8"
	case errors.Is(err, ErrNegativeLength):
		return "negative_length"
	case errors.Is(err, ErrEmptyFrame):
		return "empty_frame"
	case errors.Is(err, ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	default:
		return "io"
	}
}
