// Package conversation turns one uploaded audio clip into one spoken reply:
// authenticate, transcribe, recall, generate, persist, synthesize, stream.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-doll-conversation-service/internal/models"
	"ai-doll-conversation-service/internal/observability/logging"
	"ai-doll-conversation-service/internal/service/audio"
	"ai-doll-conversation-service/internal/service/capability"
	"ai-doll-conversation-service/internal/service/llm"
	"ai-doll-conversation-service/internal/service/stt"
	"ai-doll-conversation-service/internal/service/tts"
)

// Status is the device-facing outcome of a turn.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusUnauthorized       Status = "unauthorized"
	StatusInvalidRequest     Status = "invalid_request"
	StatusTooLarge           Status = "too_large"
	StatusServiceUnavailable Status = "service_unavailable"
	StatusInternalError      Status = "internal_error"
)

// CriticalErrorMessage is returned when not even the apology clip could be produced.
const CriticalErrorMessage = "A critical error occurred in the AI services."

const publishTimeout = 10 * time.Second

// ErrEmptyChildID is returned for an authenticated request without a child.
var ErrEmptyChildID = errors.New("child_id is required")

// Request is one uploaded clip.
type Request struct {
	AuthToken string
	ChildID   string
	Audio     []byte
}

// Response is what the device receives. Audio is set for StatusOK and
// StatusServiceUnavailable; ErrorMessage for every other status.
type Response struct {
	TurnID       string
	Status       Status
	Audio        []byte
	MimeType     string
	ErrorMessage string
}

// Memory is the per-child memory the pipeline reads and appends to.
type Memory interface {
	Recall(ctx context.Context, childID, query string) (string, error)
	Remember(ctx context.Context, childID, userText, aiText string) (models.MemoryRecord, error)
}

// TurnPublisher receives one event per finished turn.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event models.TurnEvent) error
}

// Recorder receives turn observations.
type Recorder interface {
	RecordTurnStart(audioBytes int)
	RecordTurnEnd(status string, audioBytes int, durationSeconds float64)
	RecordTurnFailure(stage, capability string)
	RecordAuthFailure()
	RecordApology()
}

// Config holds pipeline behaviour.
type Config struct {
	Persona               string
	ResponseLanguage      string
	ApologyMessage        string
	RejectEmptyTranscript bool
	Limits                audio.Limits
}

// Deps are the collaborators of a Pipeline. Publisher and Recorder may be nil.
type Deps struct {
	Gate        *Gate
	Transcriber stt.Transcriber
	Memory      Memory
	Generator   llm.Generator
	Synthesizer tts.Synthesizer
	Runner      *capability.Runner
	Publisher   TurnPublisher
	Recorder    Recorder
}

// Pipeline runs conversation turns. Safe for concurrent use; every Submit is
// independent and steps of one turn never overlap.
type Pipeline struct {
	deps   Deps
	config Config
	prompt PromptBuilder
	logger zerolog.Logger

	publishing sync.WaitGroup
	now        func() time.Time
	newID      func() string
}

// New creates a Pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	return &Pipeline{
		deps:   deps,
		config: cfg,
		prompt: PromptBuilder{Persona: cfg.Persona, Language: cfg.ResponseLanguage},
		logger: logging.WithComponent("conversation"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// outcome is the tagged result of running a turn's steps.
type outcome struct {
	reply    []byte
	record   models.MemoryRecord
	userText string
	aiText   string
	failure  *capability.Failure // set for a service failure
	err      error               // set for an internal error
}

// Submit runs one turn to completion. It never returns a Go error: every
// result, including failures, is expressed in the Response.
func (p *Pipeline) Submit(ctx context.Context, req Request) (resp Response) {
	start := p.now()
	turnID := p.newID()
	tracker := NewTracker(turnID)
	logger := logging.WithTurn(turnID, req.ChildID)
	resp = Response{TurnID: turnID}

	if err := p.deps.Gate.Check(req.AuthToken); err != nil {
		if p.deps.Recorder != nil {
			p.deps.Recorder.RecordAuthFailure()
		}
		logger.Warn().Msg("Rejected device with invalid token")
		resp.Status = StatusUnauthorized
		resp.ErrorMessage = "Invalid authentication token."
		return resp
	}
	_ = tracker.Advance(StageAuthenticated)

	if req.ChildID == "" {
		resp.Status = StatusInvalidRequest
		resp.ErrorMessage = ErrEmptyChildID.Error()
		return resp
	}
	if err := p.config.Limits.Check(req.Audio); err != nil {
		resp.Status = StatusInvalidRequest
		if errors.Is(err, audio.ErrClipTooLarge) {
			resp.Status = StatusTooLarge
		}
		resp.ErrorMessage = err.Error()
		return resp
	}

	if p.deps.Recorder != nil {
		p.deps.Recorder.RecordTurnStart(len(req.Audio))
	}
	defer func() {
		if p.deps.Recorder != nil {
			p.deps.Recorder.RecordTurnEnd(string(resp.Status), len(resp.Audio), p.now().Sub(start).Seconds())
		}
	}()

	out := p.run(ctx, tracker, req.ChildID, req.Audio, logger)

	switch {
	case out.err == nil && out.failure == nil:
		_ = tracker.Advance(StageStreamed)
		resp.Status = StatusOK
		resp.Audio = out.reply
		resp.MimeType = tts.MimeType
		logger.Info().Int("audioBytes", len(out.reply)).Msg("Turn completed")

	case out.failure != nil:
		tracker.Abort()
		p.recordFailure(tracker, string(out.failure.Capability))
		capLogger := logging.WithCapability(turnID, req.ChildID, string(out.failure.Capability))
		capLogger.Error().
			Err(out.failure.Err).
			Str("stage", tracker.Reached().String()).
			Int("attempts", out.failure.Attempts).
			Bool("rateLimited", out.failure.RateLimited()).
			Msg("Capability failed, serving apology")
		resp = p.apologize(ctx, resp, logger)

	default:
		tracker.Abort()
		p.recordFailure(tracker, "")
		logger.Error().Err(out.err).Str("stage", tracker.Reached().String()).Msg("Internal error in turn")
		resp.Status = StatusInternalError
		resp.ErrorMessage = CriticalErrorMessage
	}

	p.publish(tracker, req.ChildID, resp.Status, out, p.now().Sub(start))
	return resp
}

// run executes the steps strictly in order. A panic is converted into an
// internal error.
func (p *Pipeline) run(ctx context.Context, tracker *Tracker, childID string, clip []byte, logger zerolog.Logger) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("panic: %v", r)}
		}
	}()

	classify := func(err error) outcome {
		if f, ok := capability.AsFailure(err); ok {
			return outcome{failure: f}
		}
		return outcome{err: err}
	}

	text, err := capability.Do(ctx, p.deps.Runner, capability.Transcription, func(ctx context.Context) (string, error) {
		return p.deps.Transcriber.Transcribe(ctx, clip)
	})
	if err != nil {
		return classify(err)
	}
	text = strings.TrimSpace(text)
	if text == "" && p.config.RejectEmptyTranscript {
		return outcome{failure: capability.NewFailure(capability.Transcription, capability.ErrEmptyTranscript)}
	}
	if err := tracker.Advance(StageTranscribed); err != nil {
		return outcome{err: err}
	}
	logger.Debug().Str("transcript", text).Msg("Transcribed clip")

	// An empty utterance has nothing to embed, so it is neither recalled
	// against nor remembered.
	silent := text == ""

	var history string
	if !silent {
		history, err = p.deps.Memory.Recall(ctx, childID, text)
		if err != nil {
			return classify(err)
		}
	}
	if err := tracker.Advance(StageRecalled); err != nil {
		return outcome{err: err}
	}

	prompt := p.prompt.Build(childID, history, text)
	reply, err := capability.Do(ctx, p.deps.Runner, capability.Generation, func(ctx context.Context) (string, error) {
		return p.deps.Generator.Generate(ctx, prompt)
	})
	if err != nil {
		return classify(err)
	}
	if err := tracker.Advance(StageGenerated); err != nil {
		return outcome{err: err}
	}
	logger.Debug().Str("reply", reply).Msg("Generated reply")

	var record models.MemoryRecord
	if !silent {
		record, err = p.deps.Memory.Remember(ctx, childID, text, reply)
		if err != nil {
			return classify(err)
		}
	}
	if err := tracker.Advance(StagePersisted); err != nil {
		return outcome{err: err}
	}

	speech, err := p.synthesize(ctx, reply)
	if err != nil {
		return classify(err)
	}
	if err := tracker.Advance(StageSynthesized); err != nil {
		return outcome{err: err}
	}

	return outcome{reply: speech, record: record, userText: text, aiText: reply}
}

func (p *Pipeline) synthesize(ctx context.Context, text string) ([]byte, error) {
	return capability.Do(ctx, p.deps.Runner, capability.Synthesis, func(ctx context.Context) ([]byte, error) {
		return p.deps.Synthesizer.Synthesize(ctx, text)
	})
}

// apologize synthesizes the fixed apology. If that fails too the device gets
// a structured error without audio.
func (p *Pipeline) apologize(ctx context.Context, resp Response, logger zerolog.Logger) (out Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Apology synthesis panicked")
			out = resp
			out.Status = StatusInternalError
			out.ErrorMessage = CriticalErrorMessage
		}
	}()

	clip, err := p.synthesize(ctx, p.config.ApologyMessage)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to synthesize apology")
		resp.Status = StatusInternalError
		resp.ErrorMessage = CriticalErrorMessage
		return resp
	}

	if p.deps.Recorder != nil {
		p.deps.Recorder.RecordApology()
	}
	resp.Status = StatusServiceUnavailable
	resp.Audio = clip
	resp.MimeType = tts.MimeType
	return resp
}

func (p *Pipeline) recordFailure(tracker *Tracker, capabilityName string) {
	if p.deps.Recorder != nil {
		p.deps.Recorder.RecordTurnFailure(tracker.Reached().String(), capabilityName)
	}
}

// publish emits the turn event in the background; it never delays or alters
// the device response.
func (p *Pipeline) publish(tracker *Tracker, childID string, status Status, out outcome, latency time.Duration) {
	if p.deps.Publisher == nil {
		return
	}

	event := models.TurnEvent{
		EventType: models.EventTypeTurnCompleted,
		TurnID:    tracker.TurnID(),
		ChildID:   childID,
		Status:    string(status),
		Stage:     tracker.Reached().String(),
		LatencyMs: latency.Milliseconds(),
		Timestamp: p.now().UnixMilli(),
	}
	if status == StatusOK {
		event.UserText = out.userText
		event.AIText = out.aiText
		event.MemoryID = out.record.ID
	} else {
		event.EventType = models.EventTypeTurnFailed
		if out.failure != nil {
			event.Capability = string(out.failure.Capability)
		}
	}

	p.publishing.Add(1)
	go func() {
		defer p.publishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.deps.Publisher.PublishTurn(ctx, event); err != nil {
			p.logger.Warn().Err(err).Str("turnId", event.TurnID).Msg("Failed to publish turn event")
		}
	}()
}

// Wait blocks until background event publishing has finished.
func (p *Pipeline) Wait() {
	p.publishing.Wait()
}
