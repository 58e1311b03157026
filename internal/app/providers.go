package app

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"ai-doll-conversation-service/internal/memory"
	"ai-doll-conversation-service/internal/memory/store/chromem"
	"ai-doll-conversation-service/internal/memory/store/pgvector"
	"ai-doll-conversation-service/internal/memory/store/qdrant"
	"ai-doll-conversation-service/internal/service/clients"
	embedgemini "ai-doll-conversation-service/internal/service/embedding/gemini"
	embedmock "ai-doll-conversation-service/internal/service/embedding/mock"
	embedopenai "ai-doll-conversation-service/internal/service/embedding/openai"
	"ai-doll-conversation-service/internal/service/llm"
	llmanthropic "ai-doll-conversation-service/internal/service/llm/anthropic"
	llmgemini "ai-doll-conversation-service/internal/service/llm/gemini"
	llmmock "ai-doll-conversation-service/internal/service/llm/mock"
	llmopenai "ai-doll-conversation-service/internal/service/llm/openai"
	"ai-doll-conversation-service/internal/service/stt"
	sttgoogle "ai-doll-conversation-service/internal/service/stt/google"
	sttmock "ai-doll-conversation-service/internal/service/stt/mock"
	sttopenai "ai-doll-conversation-service/internal/service/stt/openai"
	"ai-doll-conversation-service/internal/service/tts"
	ttsgoogle "ai-doll-conversation-service/internal/service/tts/google"
	ttsmock "ai-doll-conversation-service/internal/service/tts/mock"
	ttsopenai "ai-doll-conversation-service/internal/service/tts/openai"
)

// providers are the backends selected by configuration.
type providers struct {
	store       memory.Store
	embedder    memory.Embedder
	transcriber stt.Transcriber
	generator   llm.Generator
	synthesizer tts.Synthesizer
}

// buildProviders constructs each backend. Vendor clients are created lazily
// and shared between capabilities.
func (a *Application) buildProviders(ctx context.Context) (*providers, error) {
	var (
		p      providers
		err    error
		openai *goopenai.Client
		gemini *genai.Client
	)
	cfg := a.Cfg

	openaiClient := func() *goopenai.Client {
		if openai == nil {
			openai = clients.NewOpenAI(cfg.Vendors.OpenAIAPIKey, cfg.Vendors.OpenAIBaseURL)
		}
		return openai
	}
	geminiClient := func() (*genai.Client, error) {
		if gemini == nil {
			gemini, err = clients.NewGemini(ctx, cfg.Vendors.GeminiAPIKey, cfg.Vendors.GeminiProject, cfg.Vendors.GeminiLocation)
		}
		return gemini, err
	}

	if p.store, err = a.buildStore(ctx); err != nil {
		return nil, err
	}

	switch cfg.Embedding.Provider {
	case "openai":
		p.embedder = embedopenai.New(openaiClient(), cfg.Embedding.Model, cfg.Memory.VectorSize)
	case "gemini":
		c, err := geminiClient()
		if err != nil {
			return nil, err
		}
		p.embedder = embedgemini.New(c, cfg.Embedding.Model, cfg.Memory.VectorSize)
	default:
		p.embedder = embedmock.New(cfg.Memory.VectorSize)
	}

	switch cfg.STT.Provider {
	case "google":
		sttCfg := sttgoogle.DefaultConfig()
		sttCfg.LanguageCode = cfg.STT.LanguageCode
		sttCfg.SampleRateHz = int32(cfg.STT.SampleRateHz)
		sttCfg.AudioEncoding = cfg.STT.AudioEncoding
		sttCfg.Model = cfg.STT.Model
		sttCfg.CredentialsFile = cfg.Vendors.GoogleCredentialsFile
		adapter, err := sttgoogle.New(ctx, sttCfg)
		if err != nil {
			return nil, err
		}
		a.addCloser("google-stt", adapter.Close)
		p.transcriber = adapter
	case "openai":
		p.transcriber = sttopenai.New(openaiClient(), cfg.STT.Model, cfg.STT.LanguageCode)
	default:
		p.transcriber = sttmock.New()
	}

	opts := llm.Options{Model: cfg.LLM.Model, MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature}
	switch cfg.LLM.Provider {
	case "gemini":
		c, err := geminiClient()
		if err != nil {
			return nil, err
		}
		p.generator = llmgemini.New(c, opts)
	case "openai":
		p.generator = llmopenai.New(openaiClient(), opts)
	case "anthropic":
		p.generator = llmanthropic.New(cfg.Vendors.AnthropicAPIKey, opts)
	default:
		p.generator = llmmock.New()
	}

	switch cfg.TTS.Provider {
	case "google":
		ttsCfg := ttsgoogle.DefaultConfig()
		ttsCfg.LanguageCode = cfg.TTS.LanguageCode
		if cfg.TTS.Voice != "" {
			ttsCfg.Voice = cfg.TTS.Voice
		}
		ttsCfg.CredentialsFile = cfg.Vendors.GoogleCredentialsFile
		synth, err := ttsgoogle.New(ctx, ttsCfg)
		if err != nil {
			return nil, err
		}
		a.addCloser("google-tts", synth.Close)
		p.synthesizer = synth
	case "openai":
		p.synthesizer = ttsopenai.New(openaiClient(), cfg.TTS.Voice)
	default:
		p.synthesizer = ttsmock.New()
	}

	return &p, nil
}

func (a *Application) buildStore(ctx context.Context) (memory.Store, error) {
	cfg := a.Cfg.Memory

	var (
		store memory.Store
		err   error
	)
	switch cfg.Backend {
	case "qdrant":
		var s *qdrant.Store
		s, err = qdrant.New(qdrant.Config{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantUseTLS,
		})
		store = s
	case "pgvector":
		var s *pgvector.Store
		s, err = pgvector.New(ctx, cfg.PostgresURL)
		store = s
	default:
		var s *chromem.Store
		s, err = chromem.New(chromem.Config{Path: cfg.ChromemPath, Compress: cfg.ChromemCompress})
		store = s
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open vector store", goerr.V("backend", cfg.Backend))
	}
	a.addCloser(cfg.Backend, store.Close)
	return store, nil
}
