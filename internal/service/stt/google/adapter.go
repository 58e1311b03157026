// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"

	"ai-doll-conversation-service/internal/service/audio"
	"ai-doll-conversation-service/internal/service/capability"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode    string // e.g., "fa-IR"
	SampleRateHz    int32  // used when the clip header carries no rate
	AudioEncoding   string // forces an encoding; empty detects it from the clip header
	Model           string // optional recognition model, e.g. "latest_short"
	CredentialsFile string // empty uses application default credentials
}

// DefaultConfig returns sensible defaults for child speech in Persian.
func DefaultConfig() Config {
	return Config{
		LanguageCode: "fa-IR",
		SampleRateHz: 16000,
	}
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Adapter implements stt.Transcriber using synchronous recognition.
type Adapter struct {
	client recognizer
	config Config
}

// New creates a new Google STT adapter.
// Uses GOOGLE_APPLICATION_CREDENTIALS unless cfg.CredentialsFile is set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create speech client")
	}
	return &Adapter{client: c, config: cfg}, nil
}

// Transcribe sends the whole clip to Google and joins the top alternatives.
func (a *Adapter) Transcribe(ctx context.Context, clip []byte) (string, error) {
	resp, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: a.recognitionConfig(clip),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: clip},
		},
	})
	if err != nil {
		return "", capability.FromGRPC(err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the gRPC connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) recognitionConfig(clip []byte) *speechpb.RecognitionConfig {
	cfg := &speechpb.RecognitionConfig{
		LanguageCode:               a.config.LanguageCode,
		Model:                      a.config.Model,
		EnableAutomaticPunctuation: true,
	}

	if a.config.AudioEncoding != "" {
		cfg.Encoding = parseAudioEncoding(a.config.AudioEncoding)
		cfg.SampleRateHertz = a.config.SampleRateHz
		return cfg
	}

	info := audio.Detect(clip)
	cfg.Encoding = encodingFor(info)
	cfg.SampleRateHertz = a.config.SampleRateHz
	if info.SampleRateHz > 0 {
		cfg.SampleRateHertz = int32(info.SampleRateHz)
	}
	if info.Channels > 1 {
		cfg.AudioChannelCount = int32(info.Channels)
	}
	return cfg
}

func encodingFor(info audio.Info) speechpb.RecognitionConfig_AudioEncoding {
	switch info.Format {
	case audio.FormatWAV:
		if info.PCMFormat == 7 {
			return speechpb.RecognitionConfig_MULAW
		}
		return speechpb.RecognitionConfig_LINEAR16
	case audio.FormatFLAC:
		return speechpb.RecognitionConfig_FLAC
	case audio.FormatOggOpus:
		return speechpb.RecognitionConfig_OGG_OPUS
	case audio.FormatWebM:
		return speechpb.RecognitionConfig_WEBM_OPUS
	case audio.FormatMP3:
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// parseAudioEncoding converts a string encoding name to the protobuf enum.
// Defaults to LINEAR16 if the encoding is unknown.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "MP3":
		return speechpb.RecognitionConfig_MP3
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
