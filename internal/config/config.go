// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig
	Auth          AuthConfig
	Memory        MemoryConfig
	Embedding     EmbeddingConfig
	STT           STTConfig
	LLM           LLMConfig
	TTS           TTSConfig
	Vendors       VendorConfig
	Pipeline      PipelineConfig
	Capabilities  CapabilityConfig
	Audio         AudioConfig
	RateLimit     RateLimitConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsAddr string
	Env         string
}

type AuthConfig struct {
	// DollMasterToken is the shared secret every device sends in X-Auth-Token.
	DollMasterToken string
}

type MemoryConfig struct {
	Backend     string // chromem, qdrant, pgvector
	Collection  string
	VectorSize  int
	RecallLimit int

	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantUseTLS bool

	ChromemPath     string // empty keeps the collection in memory only
	ChromemCompress bool

	PostgresURL string
}

type EmbeddingConfig struct {
	Provider string // mock, openai, gemini
	Model    string
}

type STTConfig struct {
	Provider      string // mock, google, openai
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string // empty means detect from the clip header
	Model         string
}

type LLMConfig struct {
	Provider    string // mock, gemini, openai, anthropic
	Model       string
	MaxTokens   int
	Temperature float64
}

type TTSConfig struct {
	Provider     string // mock, google, openai
	LanguageCode string
	Voice        string
}

// VendorConfig holds credentials shared by several capability backends.
type VendorConfig struct {
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	GeminiAPIKey          string
	GeminiProject         string
	GeminiLocation        string
	AnthropicAPIKey       string
	GoogleCredentialsFile string
}

type PipelineConfig struct {
	Persona               string
	ResponseLanguage      string
	ApologyMessage        string
	RejectEmptyTranscript bool
}

type CapabilityConfig struct {
	STTTimeout         time.Duration
	LLMTimeout         time.Duration
	TTSTimeout         time.Duration
	EmbeddingTimeout   time.Duration
	VectorStoreTimeout time.Duration
	MaxAttempts        int
	RetryBackoff       time.Duration
}

type AudioConfig struct {
	MaxBytes int64
}

type RateLimitConfig struct {
	RPS   float64 // 0 disables the limiter
	Burst int
}

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicTurns    string
	TopicFailures string
	Principal     string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// DefaultPersona describes the companion character the model plays.
const DefaultPersona = "You are a friendly, curious, and safe companion for a child. " +
	"Your name is 'Abenek' and you are a blue robot. " +
	"Keep answers short, warm, and suitable for young children."

// DefaultApologyMessage is spoken when an AI service is down.
const DefaultApologyMessage = "اوپس، الان نمیتونم فکر کنم. میشه چند لحظه دیگه دوباره امتحان کنی؟"

func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-doll-conversation")

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8001"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
			Env:         envOrDefault("ENV", ""),
		},
		Auth: AuthConfig{
			DollMasterToken: os.Getenv("DOLL_MASTER_AUTH_TOKEN"),
		},
		Memory: MemoryConfig{
			Backend:         strings.ToLower(envOrDefault("MEMORY_BACKEND", "chromem")),
			Collection:      envOrDefault("MEMORY_COLLECTION", "toy_conversations_v2"),
			VectorSize:      envOrDefaultInt("MEMORY_VECTOR_SIZE", 1536),
			RecallLimit:     envOrDefaultInt("MEMORY_RECALL_LIMIT", 3),
			QdrantHost:      envOrDefault("QDRANT_HOST", "localhost"),
			QdrantPort:      envOrDefaultInt("QDRANT_PORT", 6334),
			QdrantAPIKey:    os.Getenv("QDRANT_API_KEY"),
			QdrantUseTLS:    envOrDefaultBool("QDRANT_USE_TLS", false),
			ChromemPath:     os.Getenv("CHROMEM_PATH"),
			ChromemCompress: envOrDefaultBool("CHROMEM_COMPRESS", false),
			PostgresURL:     os.Getenv("POSTGRES_URL"),
		},
		Embedding: EmbeddingConfig{
			Provider: strings.ToLower(envOrDefault("EMBEDDING_PROVIDER", "mock")),
			Model:    os.Getenv("EMBEDDING_MODEL"), // empty selects the backend default
		},
		STT: STTConfig{
			Provider:      strings.ToLower(envOrDefault("STT_PROVIDER", "mock")),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "fa-IR"),
			SampleRateHz:  envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioEncoding: os.Getenv("STT_AUDIO_ENCODING"),
			Model:         os.Getenv("STT_MODEL"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(envOrDefault("LLM_PROVIDER", "mock")),
			Model:       os.Getenv("LLM_MODEL"),
			MaxTokens:   envOrDefaultInt("LLM_MAX_TOKENS", 512),
			Temperature: envOrDefaultFloat("LLM_TEMPERATURE", 0.7),
		},
		TTS: TTSConfig{
			Provider:     strings.ToLower(envOrDefault("TTS_PROVIDER", "mock")),
			LanguageCode: envOrDefault("TTS_LANGUAGE_CODE", "fa-IR"),
			Voice:        os.Getenv("TTS_VOICE"), // empty selects the backend default
		},
		Vendors: VendorConfig{
			OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:         os.Getenv("OPENAI_BASE_URL"),
			GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
			GeminiProject:         os.Getenv("GEMINI_PROJECT"),
			GeminiLocation:        envOrDefault("GEMINI_LOCATION", "us-central1"),
			AnthropicAPIKey:       os.Getenv("ANTHROPIC_API_KEY"),
			GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		},
		Pipeline: PipelineConfig{
			Persona:               envOrDefault("PIPELINE_PERSONA", DefaultPersona),
			ResponseLanguage:      envOrDefault("PIPELINE_RESPONSE_LANGUAGE", "Persian"),
			ApologyMessage:        envOrDefault("PIPELINE_APOLOGY_MESSAGE", DefaultApologyMessage),
			RejectEmptyTranscript: envOrDefaultBool("PIPELINE_REJECT_EMPTY_TRANSCRIPT", true),
		},
		Capabilities: CapabilityConfig{
			STTTimeout:         envOrDefaultDuration("STT_TIMEOUT", 30*time.Second),
			LLMTimeout:         envOrDefaultDuration("LLM_TIMEOUT", 30*time.Second),
			TTSTimeout:         envOrDefaultDuration("TTS_TIMEOUT", 20*time.Second),
			EmbeddingTimeout:   envOrDefaultDuration("EMBEDDING_TIMEOUT", 10*time.Second),
			VectorStoreTimeout: envOrDefaultDuration("VECTOR_STORE_TIMEOUT", 10*time.Second),
			MaxAttempts:        envOrDefaultInt("CAPABILITY_MAX_ATTEMPTS", 2),
			RetryBackoff:       envOrDefaultDuration("CAPABILITY_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Audio: AudioConfig{
			MaxBytes: envOrDefaultInt64("AUDIO_MAX_BYTES", 10*1024*1024),
		},
		RateLimit: RateLimitConfig{
			RPS:   envOrDefaultFloat("TALK_RATE_LIMIT_RPS", 0),
			Burst: envOrDefaultInt("TALK_RATE_LIMIT_BURST", 10),
		},
		Kafka: KafkaConfig{
			Enabled:       envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			TopicTurns:    envOrDefault("KAFKA_TOPIC_TURNS", "conversation.turn.completed"),
			TopicFailures: envOrDefault("KAFKA_TOPIC_FAILURES", "conversation.turn.failed"),
			Principal:     envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		},
	}
}

// Validate checks that the credentials required by the selected providers are present.
func (c *Config) Validate() error {
	if c.Auth.DollMasterToken == "" {
		return goerr.New("DOLL_MASTER_AUTH_TOKEN is required")
	}
	if c.Memory.VectorSize <= 0 {
		return goerr.New("MEMORY_VECTOR_SIZE must be positive", goerr.V("size", c.Memory.VectorSize))
	}
	if c.Memory.RecallLimit <= 0 {
		return goerr.New("MEMORY_RECALL_LIMIT must be positive", goerr.V("limit", c.Memory.RecallLimit))
	}

	switch c.Memory.Backend {
	case "chromem", "qdrant":
	case "pgvector":
		if c.Memory.PostgresURL == "" {
			return goerr.New("POSTGRES_URL is required for the pgvector memory backend")
		}
	default:
		return goerr.New("unknown memory backend", goerr.V("backend", c.Memory.Backend))
	}

	needOpenAI := c.Embedding.Provider == "openai" || c.STT.Provider == "openai" ||
		c.LLM.Provider == "openai" || c.TTS.Provider == "openai"
	if needOpenAI && c.Vendors.OpenAIAPIKey == "" {
		return goerr.New("OPENAI_API_KEY is required by the selected providers")
	}

	needGemini := c.Embedding.Provider == "gemini" || c.LLM.Provider == "gemini"
	if needGemini && c.Vendors.GeminiAPIKey == "" && c.Vendors.GeminiProject == "" {
		return goerr.New("GEMINI_API_KEY or GEMINI_PROJECT is required by the selected providers")
	}

	if c.LLM.Provider == "anthropic" && c.Vendors.AnthropicAPIKey == "" {
		return goerr.New("ANTHROPIC_API_KEY is required by the anthropic provider")
	}

	for name, provider := range map[string]string{
		"EMBEDDING_PROVIDER": c.Embedding.Provider,
		"STT_PROVIDER":       c.STT.Provider,
		"LLM_PROVIDER":       c.LLM.Provider,
		"TTS_PROVIDER":       c.TTS.Provider,
	} {
		if !knownProvider(name, provider) {
			return goerr.New("unknown provider", goerr.V("setting", name), goerr.V("provider", provider))
		}
	}
	return nil
}

func knownProvider(setting, provider string) bool {
	allowed := map[string][]string{
		"EMBEDDING_PROVIDER": {"mock", "openai", "gemini"},
		"STT_PROVIDER":       {"mock", "google", "openai"},
		"LLM_PROVIDER":       {"mock", "gemini", "openai", "anthropic"},
		"TTS_PROVIDER":       {"mock", "google", "openai"},
	}
	for _, p := range allowed[setting] {
		if p == provider {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
