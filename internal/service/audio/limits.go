package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyClip is returned for a zero-length upload.
	ErrEmptyClip = errors.New("audio clip is empty")
	// ErrClipTooLarge is returned when a clip exceeds Limits.MaxBytes.
	ErrClipTooLarge = errors.New("audio clip too large")
)

// Limits defines safety guardrails for uploaded clips.
// These prevent unbounded memory use per request.
type Limits struct {
	MaxBytes int64 // Max bytes accepted per clip
	MinBytes int   // Clips shorter than this are rejected as empty
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes: 10 * 1024 * 1024, // 10MB (~5 minutes at 16kHz 16-bit mono)
		MinBytes: 1,
	}
}

// Check validates clip against the limits.
func (l Limits) Check(clip []byte) error {
	if len(clip) == 0 || len(clip) < l.MinBytes {
		return fmt.Errorf("%w: %d bytes", ErrEmptyClip, len(clip))
	}
	if l.MaxBytes > 0 && int64(len(clip)) > l.MaxBytes {
		return fmt.Errorf("%w: %d > %d", ErrClipTooLarge, len(clip), l.MaxBytes)
	}
	return nil
}
