// Package mock provides a mock transcriber for running without cloud credentials.
// It cycles through a fixed list of child utterances, one per clip.
package mock

import (
	"context"
	"sync"
	"time"
)

// SimulatedUtterance is one canned transcription result.
type SimulatedUtterance struct {
	Text       string
	Confidence float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{Text: "سلام آبنک", Confidence: 0.94},
	{Text: "امروز توی مدرسه نقاشی کشیدم", Confidence: 0.91},
	{Text: "دایناسورها چی میخوردن؟", Confidence: 0.89},
	{Text: "میشه برام یه قصه بگی؟", Confidence: 0.97},
	{Text: "Hello", Confidence: 0.98},
}

// Adapter implements stt.Transcriber with canned responses.
// An empty clip transcribes to an empty string so callers can exercise
// their empty-transcript handling.
type Adapter struct {
	mu         sync.Mutex
	utterances []SimulatedUtterance
	next       int
	latency    time.Duration
	calls      int
}

// Option configures the mock adapter.
type Option func(*Adapter)

// WithUtterances replaces the canned utterances.
func WithUtterances(u ...SimulatedUtterance) Option {
	return func(a *Adapter) { a.utterances = u }
}

// WithLatency simulates vendor processing time.
func WithLatency(d time.Duration) Option {
	return func(a *Adapter) { a.latency = d }
}

// New creates a new mock transcriber.
func New(opts ...Option) *Adapter {
	a := &Adapter{utterances: DefaultUtterances}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Transcribe returns the next canned utterance.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if a.latency > 0 {
		t := time.NewTimer(a.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++

	if len(audio) == 0 || len(a.utterances) == 0 {
		return "", nil
	}
	u := a.utterances[a.next%len(a.utterances)]
	a.next++
	return u.Text, nil
}

// Calls returns how many clips were transcribed.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
