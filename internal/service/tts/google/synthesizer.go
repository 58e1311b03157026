// Package google provides a Google Cloud Text-to-Speech synthesizer.
package google

import (
	"context"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"

	"ai-doll-conversation-service/internal/service/capability"
)

// Config holds Google TTS configuration.
type Config struct {
	LanguageCode    string
	Voice           string
	CredentialsFile string
}

// DefaultConfig returns the Persian standard voice.
func DefaultConfig() Config {
	return Config{
		LanguageCode: "fa-IR",
		Voice:        "fa-IR-Standard-A",
	}
}

type speechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	client speechSynthesizer
	config Config
}

// New creates a Google TTS synthesizer.
func New(ctx context.Context, cfg Config) (*Synthesizer, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create texttospeech client")
	}
	return &Synthesizer{client: c, config: cfg}, nil
}

// Synthesize returns MP3 audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: s.config.LanguageCode,
			Name:         s.config.Voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, capability.FromGRPC(err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, capability.ErrEmptyResponse
	}
	return resp.GetAudioContent(), nil
}

// Close releases the gRPC connection.
func (s *Synthesizer) Close() error {
	return s.client.Close()
}
