package audio

import (
	"encoding/binary"
	"errors"
	"testing"
)

// wavHeader builds a canonical 44-byte PCM WAV header.
func wavHeader(sampleRate, channels, bits int) []byte {
	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(sampleRate*channels*bits/8))
	binary.LittleEndian.PutUint16(h[32:34], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bits))
	copy(h[36:40], "data")
	return h
}

func TestDetect_WAV(t *testing.T) {
	info := Detect(wavHeader(16000, 1, 16))

	if info.Format != FormatWAV {
		t.Fatalf("expected wav, got %s", info.Format)
	}
	if info.SampleRateHz != 16000 {
		t.Errorf("expected 16000 Hz, got %d", info.SampleRateHz)
	}
	if info.Channels != 1 {
		t.Errorf("expected mono, got %d channels", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("expected 16 bits, got %d", info.BitsPerSample)
	}
	if info.PCMFormat != wavFormatPCM {
		t.Errorf("expected PCM format tag, got %d", info.PCMFormat)
	}
}

func TestDetect_WAVSkipsUnknownChunks(t *testing.T) {
	h := wavHeader(8000, 1, 16)
	// Insert a LIST chunk with an odd size before "fmt ".
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	clip := append(append(append([]byte{}, h[:12]...), list...), h[12:]...)

	info := Detect(clip)
	if info.SampleRateHz != 8000 {
		t.Errorf("expected 8000 Hz after skipping LIST chunk, got %d", info.SampleRateHz)
	}
}

func TestDetect_FLAC(t *testing.T) {
	clip := make([]byte, 42)
	copy(clip, "fLaC")
	// 44100 Hz = 0x0AC44, stereo (channels-1 = 1)
	clip[18] = 0x0A
	clip[19] = 0xC4
	clip[20] = 0x40 | (1 << 1)

	info := Detect(clip)
	if info.Format != FormatFLAC {
		t.Fatalf("expected flac, got %s", info.Format)
	}
	if info.SampleRateHz != 44100 {
		t.Errorf("expected 44100 Hz, got %d", info.SampleRateHz)
	}
	if info.Channels != 2 {
		t.Errorf("expected 2 channels, got %d", info.Channels)
	}
}

func TestDetect_OggOpus(t *testing.T) {
	clip := make([]byte, 28+19)
	copy(clip, "OggS")
	copy(clip[28:], "OpusHead")
	clip[28+8] = 1
	clip[28+9] = 1
	binary.LittleEndian.PutUint32(clip[28+12:], 16000)

	info := Detect(clip)
	if info.Format != FormatOggOpus {
		t.Fatalf("expected ogg_opus, got %s", info.Format)
	}
	if info.SampleRateHz != 16000 {
		t.Errorf("expected 16000 Hz, got %d", info.SampleRateHz)
	}
}

func TestDetect_OggWithoutOpusIsUnknown(t *testing.T) {
	clip := make([]byte, 64)
	copy(clip, "OggS")
	copy(clip[28:], "\x01vorbis")

	if got := Detect(clip).Format; got != FormatUnknown {
		t.Errorf("expected unknown for vorbis, got %s", got)
	}
}

func TestDetect_MP3(t *testing.T) {
	tests := []struct {
		name     string
		clip     []byte
		wantRate int
	}{
		{"id3 tag", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), 0},
		{"mpeg1 layer3 44.1k", []byte{0xFF, 0xFB, 0x90, 0x00}, 44100},
		{"mpeg2 layer3 24k", []byte{0xFF, 0xF3, 0x84, 0x00}, 24000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Detect(tt.clip)
			if info.Format != FormatMP3 {
				t.Fatalf("expected mp3, got %s", info.Format)
			}
			if info.SampleRateHz != tt.wantRate {
				t.Errorf("expected %d Hz, got %d", tt.wantRate, info.SampleRateHz)
			}
		})
	}
}

func TestDetect_Unknown(t *testing.T) {
	for _, clip := range [][]byte{nil, []byte("x"), []byte("hello world")} {
		if got := Detect(clip).Format; got != FormatUnknown {
			t.Errorf("Detect(%q) = %s, want unknown", clip, got)
		}
	}
}

func TestLimits_Check(t *testing.T) {
	limits := Limits{MaxBytes: 100, MinBytes: 1}

	if err := limits.Check(make([]byte, 50)); err != nil {
		t.Fatalf("50 bytes should pass: %v", err)
	}
	if err := limits.Check(make([]byte, 100)); err != nil {
		t.Fatalf("exactly MaxBytes should pass: %v", err)
	}
	if err := limits.Check(make([]byte, 101)); !errors.Is(err, ErrClipTooLarge) {
		t.Errorf("expected ErrClipTooLarge, got %v", err)
	}
	if err := limits.Check(nil); !errors.Is(err, ErrEmptyClip) {
		t.Errorf("expected ErrEmptyClip, got %v", err)
	}
}

func TestLimits_ZeroMaxBytesDisablesCap(t *testing.T) {
	if err := (Limits{}).Check(make([]byte, 1<<20)); err != nil {
		t.Errorf("zero MaxBytes should not cap: %v", err)
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.MaxBytes != 10*1024*1024 {
		t.Errorf("Expected default max bytes to be 10MB, got %d", limits.MaxBytes)
	}
	if limits.MinBytes != 1 {
		t.Errorf("Expected default min bytes to be 1, got %d", limits.MinBytes)
	}
}
