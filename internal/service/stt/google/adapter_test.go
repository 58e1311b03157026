package google

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-doll-conversation-service/internal/service/capability"
)

type fakeRecognizer struct {
	req  *speechpb.RecognizeRequest
	resp *speechpb.RecognizeResponse
	err  error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeRecognizer) Close() error { return nil }

func result(text string) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text, Confidence: 0.9}},
	}
}

func wav(sampleRate uint32) []byte {
	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1)
	binary.LittleEndian.PutUint16(h[22:24], 1)
	binary.LittleEndian.PutUint32(h[24:28], sampleRate)
	binary.LittleEndian.PutUint16(h[34:36], 16)
	copy(h[36:40], "data")
	return h
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "fa-IR" {
		t.Errorf("expected default language 'fa-IR', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "" {
		t.Errorf("expected encoding detection by default, got %s", cfg.AudioEncoding)
	}
}

func TestTranscribe_JoinsResults(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{result("سلام"), {}, result(" آبنک ")},
	}}
	a := &Adapter{client: fake, config: DefaultConfig()}

	got, err := a.Transcribe(context.Background(), wav(8000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "سلام آبنک" {
		t.Errorf("expected joined transcript, got %q", got)
	}

	cfg := fake.req.GetConfig()
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("expected LINEAR16 for wav, got %v", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 8000 {
		t.Errorf("expected sample rate from header 8000, got %d", cfg.GetSampleRateHertz())
	}
	if cfg.GetLanguageCode() != "fa-IR" {
		t.Errorf("expected fa-IR, got %s", cfg.GetLanguageCode())
	}
}

func TestTranscribe_NoResultsIsEmpty(t *testing.T) {
	a := &Adapter{client: &fakeRecognizer{resp: &speechpb.RecognizeResponse{}}, config: DefaultConfig()}

	got, err := a.Transcribe(context.Background(), wav(16000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty transcript, got %q", got)
	}
}

func TestTranscribe_QuotaIsRateLimited(t *testing.T) {
	fake := &fakeRecognizer{err: status.Error(codes.ResourceExhausted, "quota exceeded")}
	a := &Adapter{client: fake, config: DefaultConfig()}

	_, err := a.Transcribe(context.Background(), wav(16000))
	if !errors.Is(err, capability.ErrRateLimited) {
		t.Errorf("expected rate limited error, got %v", err)
	}
}

func TestRecognitionConfig_ForcedEncoding(t *testing.T) {
	a := &Adapter{config: Config{LanguageCode: "fa-IR", SampleRateHz: 8000, AudioEncoding: "MULAW"}}

	cfg := a.recognitionConfig(wav(16000))
	if cfg.GetEncoding() != speechpb.RecognitionConfig_MULAW {
		t.Errorf("expected forced MULAW, got %v", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 8000 {
		t.Errorf("expected configured 8000 Hz, got %d", cfg.GetSampleRateHertz())
	}
}

func TestRecognitionConfig_UnknownFallsBackToConfiguredRate(t *testing.T) {
	a := &Adapter{config: DefaultConfig()}

	cfg := a.recognitionConfig([]byte("raw pcm bytes"))
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("expected LINEAR16 fallback, got %v", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 16000 {
		t.Errorf("expected 16000 Hz fallback, got %d", cfg.GetSampleRateHertz())
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"MP3", speechpb.RecognitionConfig_MP3},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},        // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseAudioEncoding_CaseSensitive(t *testing.T) {
	// Encoding strings should be uppercase
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"mulaw", speechpb.RecognitionConfig_LINEAR16}, // lowercase -> fallback
		{"Flac", speechpb.RecognitionConfig_LINEAR16},  // mixed case -> fallback
		{"FLAC", speechpb.RecognitionConfig_FLAC},      // uppercase -> match
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
