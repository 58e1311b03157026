// Package mock provides a synthesizer that returns a silent MP3 frame
// followed by the text, for local runs without cloud credentials.
package mock

import (
	"context"
	"errors"
	"sync"
)

// silentFrame is a single MPEG-1 Layer III frame header (128 kbit/s, 44.1 kHz)
// so the output sniffs as audio/mpeg.
var silentFrame = []byte{0xFF, 0xFB, 0x90, 0x64}

// ErrSynthesisFailed is returned by a synthesizer built with FailOn.
var ErrSynthesisFailed = errors.New("mock synthesis failed")

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	mu     sync.Mutex
	texts  []string
	failOn func(text string) bool
}

// Option configures the mock synthesizer.
type Option func(*Synthesizer)

// FailOn makes Synthesize fail for every text matching fn.
func FailOn(fn func(text string) bool) Option {
	return func(s *Synthesizer) { s.failOn = fn }
}

// New creates a mock synthesizer.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize records text and returns a fake MP3 payload.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.failOn != nil && s.failOn(text) {
		return nil, ErrSynthesisFailed
	}
	out := make([]byte, 0, len(silentFrame)+len(text))
	out = append(out, silentFrame...)
	return append(out, text...), nil
}

// Texts returns every text synthesized so far.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}
