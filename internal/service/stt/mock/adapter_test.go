package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAdapter_CyclesUtterances(t *testing.T) {
	a := New(WithUtterances(
		SimulatedUtterance{Text: "one"},
		SimulatedUtterance{Text: "two"},
	))
	ctx := context.Background()

	want := []string{"one", "two", "one"}
	for i, w := range want {
		got, err := a.Transcribe(ctx, []byte("audio"))
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("call %d: expected %q, got %q", i, w, got)
		}
	}
	if a.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", a.Calls())
	}
}

func TestAdapter_EmptyAudioYieldsEmptyText(t *testing.T) {
	a := New()

	got, err := a.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty transcript, got %q", got)
	}
}

func TestAdapter_DefaultUtterances(t *testing.T) {
	a := New()

	got, err := a.Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != DefaultUtterances[0].Text {
		t.Errorf("expected first default utterance, got %q", got)
	}
}

func TestAdapter_LatencyRespectsContext(t *testing.T) {
	a := New(WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Transcribe(ctx, []byte("audio"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Transcribe did not return promptly after cancellation")
	}
}

func TestAdapter_ConcurrentTranscribe(t *testing.T) {
	a := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Transcribe(ctx, []byte("audio")); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if a.Calls() != 20 {
		t.Errorf("expected 20 calls, got %d", a.Calls())
	}
}
