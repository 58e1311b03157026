// Package tts defines the interface for Text-to-Speech backends.
package tts

import "context"

// MimeType is the content type every backend produces.
const MimeType = "audio/mpeg"

// Synthesizer converts reply text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
