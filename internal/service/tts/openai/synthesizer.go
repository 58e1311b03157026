// Package openai provides a synthesizer backed by the OpenAI speech API.
package openai

import (
	"context"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"ai-doll-conversation-service/internal/service/capability"
	"ai-doll-conversation-service/internal/service/clients"
)

// DefaultVoice is used when no voice is configured.
const DefaultVoice = goopenai.VoiceNova

type speechClient interface {
	CreateSpeech(ctx context.Context, request goopenai.CreateSpeechRequest) (goopenai.RawResponse, error)
}

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	client speechClient
	voice  goopenai.SpeechVoice
}

// New creates an OpenAI synthesizer.
func New(client *goopenai.Client, voice string) *Synthesizer {
	v := goopenai.SpeechVoice(voice)
	if voice == "" {
		v = DefaultVoice
	}
	return &Synthesizer{client: client, voice: v}
}

// Synthesize returns MP3 audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.TTSModel1,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, clients.OpenAIError(err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, capability.ErrEmptyResponse
	}
	return audio, nil
}
