// Package openai provides a Whisper transcriber backed by the OpenAI audio API.
package openai

import (
	"bytes"
	"context"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"ai-doll-conversation-service/internal/service/audio"
	"ai-doll-conversation-service/internal/service/clients"
)

type transcriptionClient interface {
	CreateTranscription(ctx context.Context, request goopenai.AudioRequest) (goopenai.AudioResponse, error)
}

// Adapter implements stt.Transcriber using Whisper.
type Adapter struct {
	client   transcriptionClient
	model    string
	language string
}

// New creates a Whisper transcriber. languageCode may be a BCP-47 tag such
// as "fa-IR"; only the language subtag is sent.
func New(client *goopenai.Client, model, languageCode string) *Adapter {
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Adapter{client: client, model: model, language: isoLanguage(languageCode)}
}

// Transcribe uploads the clip and returns the recognized text.
func (a *Adapter) Transcribe(ctx context.Context, clip []byte) (string, error) {
	resp, err := a.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    a.model,
		FilePath: fileName(audio.Detect(clip).Format),
		Reader:   bytes.NewReader(clip),
		Language: a.language,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", clients.OpenAIError(err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// fileName picks an extension Whisper uses to recognize the container.
func fileName(f audio.Format) string {
	switch f {
	case audio.FormatFLAC:
		return "clip.flac"
	case audio.FormatOggOpus:
		return "clip.ogg"
	case audio.FormatMP3:
		return "clip.mp3"
	case audio.FormatWebM:
		return "clip.webm"
	default:
		return "clip.wav"
	}
}

func isoLanguage(code string) string {
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}
