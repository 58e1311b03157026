package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-doll-conversation-service/internal/memory"
	"ai-doll-conversation-service/internal/memory/store/chromem"
	"ai-doll-conversation-service/internal/models"
	"ai-doll-conversation-service/internal/service/audio"
	"ai-doll-conversation-service/internal/service/capability"
	embedmock "ai-doll-conversation-service/internal/service/embedding/mock"
	llmmock "ai-doll-conversation-service/internal/service/llm/mock"
	"ai-doll-conversation-service/internal/service/stt"
	sttmock "ai-doll-conversation-service/internal/service/stt/mock"
	ttsmock "ai-doll-conversation-service/internal/service/tts/mock"
)

const (
	testToken   = "doll-secret"
	testApology = "sorry, try again"
	testDims    = 16
)

var clip = []byte("RIFF-fake-audio")

type genFunc func(ctx context.Context, prompt string) (string, error)

func (f genFunc) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

type fakePublisher struct {
	mu     sync.Mutex
	events []models.TurnEvent
	err    error
}

func (f *fakePublisher) PublishTurn(ctx context.Context, e models.TurnEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) Events() []models.TurnEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TurnEvent(nil), f.events...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  int
	ended    []string
	failures []string
	auth     int
	apology  int
}

func (f *fakeRecorder) RecordTurnStart(int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeRecorder) RecordTurnEnd(status string, _ int, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, status)
}

func (f *fakeRecorder) RecordTurnFailure(stage, capability string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, stage+"/"+capability)
}

func (f *fakeRecorder) RecordAuthFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth++
}

func (f *fakeRecorder) RecordApology() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apology++
}

// harness wires a Pipeline to in-process fakes and a real memory manager.
type harness struct {
	pipeline  *Pipeline
	stt       *sttmock.Adapter
	llm       *llmmock.Generator
	tts       *ttsmock.Synthesizer
	memory    *memory.Manager
	publisher *fakePublisher
	recorder  *fakeRecorder
}

type option func(*Deps, *Config)

func withGenerator(g genFunc) option {
	return func(d *Deps, _ *Config) { d.Generator = g }
}

func withTranscriber(t stt.Transcriber) option {
	return func(d *Deps, _ *Config) { d.Transcriber = t }
}

func withSynthesizer(s *ttsmock.Synthesizer) option {
	return func(d *Deps, _ *Config) { d.Synthesizer = s }
}

func withMemory(m Memory) option {
	return func(d *Deps, _ *Config) { d.Memory = m }
}

func withRunner(r *capability.Runner) option {
	return func(d *Deps, _ *Config) { d.Runner = r }
}

func withRejectEmpty(reject bool) option {
	return func(_ *Deps, c *Config) { c.RejectEmptyTranscript = reject }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()

	store, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	mgr := memory.NewManager(store, embedmock.New(testDims), memory.Config{Collection: "turns", Dimensions: testDims})
	require.NoError(t, mgr.EnsureReady(context.Background()))

	h := &harness{
		stt:       sttmock.New(sttmock.WithUtterances(sttmock.SimulatedUtterance{Text: "Hello"})),
		llm:       llmmock.New("Hi friend"),
		tts:       ttsmock.New(),
		memory:    mgr,
		publisher: &fakePublisher{},
		recorder:  &fakeRecorder{},
	}
	deps := Deps{
		Gate:        NewGate(testToken),
		Transcriber: h.stt,
		Memory:      mgr,
		Generator:   h.llm,
		Synthesizer: h.tts,
		Publisher:   h.publisher,
		Recorder:    h.recorder,
	}
	cfg := Config{
		Persona:               "You are a blue robot.",
		ResponseLanguage:      "Persian",
		ApologyMessage:        testApology,
		RejectEmptyTranscript: true,
		Limits:                audio.Limits{MaxBytes: 1024, MinBytes: 1},
	}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	if s, ok := deps.Synthesizer.(*ttsmock.Synthesizer); ok {
		h.tts = s
	}

	h.pipeline = New(deps, cfg)
	return h
}

func (h *harness) submit(childID string) Response {
	resp := h.pipeline.Submit(context.Background(), Request{AuthToken: testToken, ChildID: childID, Audio: clip})
	h.pipeline.Wait()
	return resp
}

func (h *harness) records(t *testing.T, childID, query string) []models.MemoryRecord {
	t.Helper()
	recs, err := h.memory.RecallRecords(context.Background(), childID, query)
	require.NoError(t, err)
	return recs
}

func TestSubmit_Success(t *testing.T) {
	h := newHarness(t)

	resp := h.submit("c1")

	require.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "audio/mpeg", resp.MimeType)
	assert.NotEmpty(t, resp.Audio)
	assert.True(t, strings.HasSuffix(string(resp.Audio), "Hi friend"))
	assert.Empty(t, resp.ErrorMessage)
	assert.NotEmpty(t, resp.TurnID)

	recs := h.records(t, "c1", "Hello")
	require.Len(t, recs, 1)
	assert.Equal(t, "Hello", recs[0].UserText)
	assert.Equal(t, "Hi friend", recs[0].AIText)

	assert.Equal(t, []string{"Hi friend"}, h.tts.Texts())

	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeTurnCompleted, events[0].EventType)
	assert.Equal(t, resp.TurnID, events[0].TurnID)
	assert.Equal(t, "STREAMED", events[0].Stage)
	assert.Equal(t, recs[0].ID, events[0].MemoryID)
	assert.Equal(t, "Hello", events[0].UserText)

	assert.Equal(t, []string{"ok"}, h.recorder.ended)
}

func TestSubmit_GenerationFailureServesApology(t *testing.T) {
	h := newHarness(t, withGenerator(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model overloaded")
	}))

	resp := h.submit("c1")

	require.Equal(t, StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "audio/mpeg", resp.MimeType)
	assert.True(t, strings.HasSuffix(string(resp.Audio), testApology))
	assert.Equal(t, []string{testApology}, h.tts.Texts())
	assert.Empty(t, h.records(t, "c1", "Hello"), "failed generation must not be persisted")

	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeTurnFailed, events[0].EventType)
	assert.Equal(t, "generation", events[0].Capability)
	assert.Equal(t, "RECALLED", events[0].Stage)
	assert.Equal(t, 1, h.recorder.apology)
	assert.Equal(t, []string{"RECALLED/generation"}, h.recorder.failures)
}

func TestSubmit_RateLimitedGenerationIsServiceFailure(t *testing.T) {
	h := newHarness(t, withGenerator(func(ctx context.Context, prompt string) (string, error) {
		return "", capability.RateLimited(errors.New("429"))
	}))

	resp := h.submit("c1")

	assert.Equal(t, StatusServiceUnavailable, resp.Status)
}

func TestSubmit_SynthesisFailsTwice(t *testing.T) {
	h := newHarness(t, withSynthesizer(ttsmock.New(ttsmock.FailOn(func(string) bool { return true }))))

	resp := h.submit("c1")

	assert.Equal(t, StatusInternalError, resp.Status)
	assert.Empty(t, resp.Audio)
	assert.Equal(t, CriticalErrorMessage, resp.ErrorMessage)
	assert.Equal(t, []string{"Hi friend", testApology}, h.tts.Texts())
}

func TestSubmit_SynthesisFailsOnlyForReply(t *testing.T) {
	h := newHarness(t, withSynthesizer(ttsmock.New(ttsmock.FailOn(func(text string) bool { return text != testApology }))))

	resp := h.submit("c1")

	assert.Equal(t, StatusServiceUnavailable, resp.Status)
	assert.True(t, strings.HasSuffix(string(resp.Audio), testApology))
}

func TestSubmit_Unauthorized(t *testing.T) {
	h := newHarness(t)

	resp := h.pipeline.Submit(context.Background(), Request{AuthToken: "wrong", ChildID: "c1", Audio: clip})
	h.pipeline.Wait()

	assert.Equal(t, StatusUnauthorized, resp.Status)
	assert.Empty(t, resp.Audio)
	assert.Equal(t, 0, h.stt.Calls())
	assert.Empty(t, h.llm.Prompts())
	assert.Empty(t, h.tts.Texts())
	assert.Empty(t, h.publisher.Events())
	assert.Equal(t, 1, h.recorder.auth)
	assert.Zero(t, h.recorder.started)
}

func TestSubmit_EmptyTranscriptRejected(t *testing.T) {
	h := newHarness(t, withTranscriber(stt.TranscriberFunc(func(ctx context.Context, audio []byte) (string, error) {
		return "   ", nil
	})))

	resp := h.submit("c1")

	assert.Equal(t, StatusServiceUnavailable, resp.Status)
	assert.Empty(t, h.llm.Prompts())
	assert.Equal(t, []string{testApology}, h.tts.Texts())
	assert.Equal(t, "transcription", h.publisher.Events()[0].Capability)
}

func TestSubmit_EmptyTranscriptForwarded(t *testing.T) {
	h := newHarness(t,
		withRejectEmpty(false),
		withTranscriber(stt.TranscriberFunc(func(ctx context.Context, audio []byte) (string, error) {
			return "  ", nil
		})),
	)

	resp := h.submit("c1")

	assert.Equal(t, StatusOK, resp.Status)
	prompts := h.llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "The child just said: ''")
	assert.Empty(t, h.records(t, "c1", "Hi friend"), "silent turns are not remembered")

	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeTurnCompleted, events[0].EventType)
	assert.Empty(t, events[0].MemoryID)
}

func TestSubmit_EmptyTranscriptForwardedSkipsMemory(t *testing.T) {
	unavailable := capability.NewFailure(capability.Embedding, errors.New("400 empty input"))
	h := newHarness(t,
		withRejectEmpty(false),
		withMemory(&brokenMemory{recallErr: unavailable, rememberErr: unavailable}),
		withTranscriber(stt.TranscriberFunc(func(ctx context.Context, audio []byte) (string, error) {
			return "", nil
		})),
	)

	resp := h.submit("c1")

	assert.Equal(t, StatusOK, resp.Status)
	assert.Len(t, h.llm.Prompts(), 1)
	assert.Equal(t, []string{"Hi friend"}, h.tts.Texts())
}

func TestSubmit_RecallFailureServesApology(t *testing.T) {
	mem := &brokenMemory{recallErr: capability.NewFailure(capability.Embedding, errors.New("embedding quota"))}
	h := newHarness(t, withMemory(mem))

	resp := h.submit("c1")

	require.Equal(t, StatusServiceUnavailable, resp.Status)
	assert.True(t, strings.HasSuffix(string(resp.Audio), testApology))
	assert.Empty(t, h.llm.Prompts(), "generation must not run after a failed recall")
	assert.Equal(t, []string{testApology}, h.tts.Texts())

	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeTurnFailed, events[0].EventType)
	assert.Equal(t, "embedding", events[0].Capability)
	assert.Equal(t, "TRANSCRIBED", events[0].Stage)
	assert.Equal(t, []string{"TRANSCRIBED/embedding"}, h.recorder.failures)
}

func TestSubmit_TranscriptionErrorIsServiceFailure(t *testing.T) {
	h := newHarness(t, withTranscriber(stt.TranscriberFunc(func(ctx context.Context, audio []byte) (string, error) {
		return "", errors.New("speech api down")
	})))

	resp := h.submit("c1")

	assert.Equal(t, StatusServiceUnavailable, resp.Status)
	assert.Empty(t, h.llm.Prompts())
}

type brokenMemory struct {
	recallErr   error
	rememberErr error
}

func (b *brokenMemory) Recall(ctx context.Context, childID, query string) (string, error) {
	return "", b.recallErr
}

func (b *brokenMemory) Remember(ctx context.Context, childID, userText, aiText string) (models.MemoryRecord, error) {
	return models.MemoryRecord{}, b.rememberErr
}

func TestSubmit_MemoryWriteFailureIsServiceFailure(t *testing.T) {
	mem := &brokenMemory{rememberErr: capability.NewFailure(capability.VectorStore, errors.New("qdrant down"))}
	h := newHarness(t, withMemory(mem))

	resp := h.submit("c1")

	assert.Equal(t, StatusServiceUnavailable, resp.Status)
	assert.Equal(t, []string{testApology}, h.tts.Texts(), "reply must not be synthesized after a failed write")
	assert.Equal(t, "vector_store", h.publisher.Events()[0].Capability)
	assert.Equal(t, "GENERATED", h.publisher.Events()[0].Stage)
}

func TestSubmit_NonCapabilityErrorIsInternal(t *testing.T) {
	h := newHarness(t, withMemory(&brokenMemory{recallErr: memory.ErrNotReady}))

	resp := h.submit("c1")

	assert.Equal(t, StatusInternalError, resp.Status)
	assert.Equal(t, CriticalErrorMessage, resp.ErrorMessage)
	assert.Empty(t, h.tts.Texts(), "internal errors must not attempt the apology")
}

func TestSubmit_PanicIsInternal(t *testing.T) {
	h := newHarness(t, withGenerator(func(ctx context.Context, prompt string) (string, error) {
		panic("nil map")
	}))

	resp := h.submit("c1")

	assert.Equal(t, StatusInternalError, resp.Status)
	assert.Empty(t, h.tts.Texts())
	assert.Empty(t, h.records(t, "c1", "Hello"))
}

func TestSubmit_InvalidRequests(t *testing.T) {
	h := newHarness(t)

	resp := h.pipeline.Submit(context.Background(), Request{AuthToken: testToken, Audio: clip})
	assert.Equal(t, StatusInvalidRequest, resp.Status)

	resp = h.pipeline.Submit(context.Background(), Request{AuthToken: testToken, ChildID: "c1"})
	assert.Equal(t, StatusInvalidRequest, resp.Status)

	resp = h.pipeline.Submit(context.Background(), Request{AuthToken: testToken, ChildID: "c1", Audio: make([]byte, 2048)})
	assert.Equal(t, StatusTooLarge, resp.Status)

	assert.Equal(t, 0, h.stt.Calls())
}

func TestSubmit_RetriesInsideCapability(t *testing.T) {
	calls := 0
	runner := capability.NewRunner(map[capability.Name]capability.Policy{
		capability.Generation: {MaxAttempts: 2},
	}, nil)
	h := newHarness(t, withRunner(runner), withGenerator(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "second try", nil
	}))

	resp := h.submit("c1")

	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, 2, calls)
}

func TestSubmit_HistoryFlowsIntoNextPrompt(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, StatusOK, h.submit("c1").Status)
	require.Equal(t, StatusOK, h.submit("c1").Status)

	prompts := h.llm.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], noHistory)
	assert.Contains(t, prompts[1], "Child previously said: 'Hello' and AI responded: 'Hi friend'")
}

func TestSubmit_StepOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		steps []string
	)
	log := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		steps = append(steps, s)
	}
	mem := &orderedMemory{log: log}
	h := newHarness(t,
		withMemory(mem),
		withTranscriber(stt.TranscriberFunc(func(ctx context.Context, audio []byte) (string, error) {
			log("transcribe")
			return "Hello", nil
		})),
		withGenerator(func(ctx context.Context, prompt string) (string, error) {
			log("generate")
			return "Hi", nil
		}),
	)

	require.Equal(t, StatusOK, h.submit("c1").Status)
	assert.Equal(t, []string{"transcribe", "recall", "generate", "remember"}, steps)
}

type orderedMemory struct {
	log func(string)
}

func (o *orderedMemory) Recall(ctx context.Context, childID, query string) (string, error) {
	o.log("recall")
	return "", nil
}

func (o *orderedMemory) Remember(ctx context.Context, childID, userText, aiText string) (models.MemoryRecord, error) {
	o.log("remember")
	return models.MemoryRecord{ID: "m1"}, nil
}

func TestSubmit_ConcurrentTurnsSameChild(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := h.pipeline.Submit(context.Background(), Request{AuthToken: testToken, ChildID: "c1", Audio: clip})
			assert.Equal(t, StatusOK, resp.Status)
		}()
	}
	wg.Wait()
	h.pipeline.Wait()

	assert.Len(t, h.records(t, "c1", "Hello"), 3)
	assert.Len(t, h.publisher.Events(), 5)
}

func TestSubmit_PublishErrorDoesNotAffectResponse(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("kafka down")

	resp := h.submit("c1")

	assert.Equal(t, StatusOK, resp.Status)
}
