// Package stt defines the interface for Speech-to-Text backends.
package stt

import "context"

// Transcriber converts one complete audio clip into plain text.
// Implementations return vendor errors unwrapped; the caller runs them inside
// a capability boundary.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, audio []byte) (string, error)

// Transcribe calls f.
func (f TranscriberFunc) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f(ctx, audio)
}
