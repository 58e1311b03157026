package app

import (
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ai-doll-conversation-service/internal/config"
	"ai-doll-conversation-service/internal/events"
	httpapi "ai-doll-conversation-service/internal/http"
	"ai-doll-conversation-service/internal/memory"
	"ai-doll-conversation-service/internal/observability/logging"
	"ai-doll-conversation-service/internal/observability/metrics"
	"ai-doll-conversation-service/internal/service/audio"
	"ai-doll-conversation-service/internal/service/capability"
	"ai-doll-conversation-service/internal/service/conversation"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Metrics     *metrics.Metrics

	Gate      *conversation.Gate
	Memory    *memory.Manager
	Pipeline  *conversation.Pipeline
	Publisher *events.Publisher
	limiter   *rate.Limiter

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New constructs the Application and every backend selected by cfg.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:   cfg.Observability.LogLevel,
		Format:  cfg.Observability.LogFormat,
		Service: logging.DefaultConfig().Service,
	})

	a := &Application{
		Cfg:     cfg,
		Logger:  logging.WithComponent("application"),
		Metrics: metrics.DefaultMetrics,
		Gate:    conversation.NewGate(cfg.Auth.DollMasterToken),
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid configuration")
	}

	runner := capability.NewRunner(policies(cfg.Capabilities), a.Metrics)

	p, err := a.buildProviders(ctx)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	a.Memory = memory.NewManager(p.store, p.embedder, memory.Config{
		Collection:  cfg.Memory.Collection,
		Dimensions:  cfg.Memory.VectorSize,
		RecallLimit: cfg.Memory.RecallLimit,
	}, memory.WithRunner(runner), memory.WithRecorder(a.Metrics))

	a.Publisher = events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicTurns:    cfg.Kafka.TopicTurns,
		TopicFailures: cfg.Kafka.TopicFailures,
		Principal:     cfg.Kafka.Principal,
	})

	limits := audio.DefaultLimits()
	if cfg.Audio.MaxBytes > 0 {
		limits.MaxBytes = cfg.Audio.MaxBytes
	}

	a.Pipeline = conversation.New(conversation.Deps{
		Gate:        a.Gate,
		Transcriber: p.transcriber,
		Memory:      a.Memory,
		Generator:   p.generator,
		Synthesizer: p.synthesizer,
		Runner:      runner,
		Publisher:   a.Publisher,
		Recorder:    a.Metrics,
	}, conversation.Config{
		Persona:               cfg.Pipeline.Persona,
		ResponseLanguage:      cfg.Pipeline.ResponseLanguage,
		ApologyMessage:        cfg.Pipeline.ApologyMessage,
		RejectEmptyTranscript: cfg.Pipeline.RejectEmptyTranscript,
		Limits:                limits,
	})

	if cfg.RateLimit.RPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	a.Logger.Info().
		Str("memoryBackend", cfg.Memory.Backend).
		Str("embedding", cfg.Embedding.Provider).
		Str("stt", cfg.STT.Provider).
		Str("llm", cfg.LLM.Provider).
		Str("tts", cfg.TTS.Provider).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("AI doll conversation service application created")
	return a, nil
}

// policies maps the configured timeouts onto every capability. Vector store
// calls share the retry budget with the vendor calls.
func policies(c config.CapabilityConfig) map[capability.Name]capability.Policy {
	policy := func(timeout time.Duration) capability.Policy {
		return capability.Policy{MaxAttempts: c.MaxAttempts, Timeout: timeout, Backoff: c.RetryBackoff}
	}
	return map[capability.Name]capability.Policy{
		capability.Transcription: policy(c.STTTimeout),
		capability.Embedding:     policy(c.EmbeddingTimeout),
		capability.Generation:    policy(c.LLMTimeout),
		capability.Synthesis:     policy(c.TTSTimeout),
		capability.VectorStore:   policy(c.VectorStoreTimeout),
	}
}

// Router returns the device-facing HTTP handler.
func (a *Application) Router() http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Pipeline:      a.Pipeline,
		Gate:          a.Gate,
		Ready:         a.Ready,
		Limiter:       a.limiter,
		Recorder:      a.Metrics,
		MaxAudioBytes: a.Cfg.Audio.MaxBytes,
	})
}

// Ready reports whether the memory collection is initialised.
func (a *Application) Ready() bool {
	return a.Memory != nil && a.Memory.Ready()
}

// Start initialises the memory collection. No turn may be served before it
// returns nil.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	if err := a.Memory.EnsureReady(ctx); err != nil {
		return goerr.Wrap(err, "failed to initialise memory", goerr.V("collection", a.Cfg.Memory.Collection))
	}

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("AI doll conversation service starting")
	return nil
}

// Shutdown waits for in-flight turn events and releases every backend.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if a.Pipeline != nil {
		a.Pipeline.Wait()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Failed to close publisher")
		}
	}
	a.closeAll()

	shutdownLogger.Info().Msg("AI doll conversation service shutting down")
}

func (a *Application) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *Application) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.Logger.Warn().Err(err).Str("backend", c.name).Msg("Failed to close backend")
		}
	}
	a.closers = nil
}
