// Package audio sniffs uploaded clips and enforces upload limits before a
// clip enters the conversation pipeline.
package audio

import (
	"bytes"
	"encoding/binary"
)

// Format is the container/codec family of an uploaded clip.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatWAV     Format = "wav"
	FormatFLAC    Format = "flac"
	FormatOggOpus Format = "ogg_opus"
	FormatMP3     Format = "mp3"
	FormatWebM    Format = "webm"
)

// Info describes what could be read from a clip header. Zero values mean the
// header did not carry the field.
type Info struct {
	Format        Format
	SampleRateHz  int
	Channels      int
	BitsPerSample int
	PCMFormat     int // WAV only: 1 = PCM, 7 = mu-law
}

const (
	wavFormatPCM   = 1
	wavFormatMuLaw = 7
)

// Detect inspects the first bytes of clip.
func Detect(clip []byte) Info {
	switch {
	case len(clip) >= 12 && string(clip[0:4]) == "RIFF" && string(clip[8:12]) == "WAVE":
		return detectWAV(clip)
	case len(clip) >= 4 && string(clip[0:4]) == "fLaC":
		return detectFLAC(clip)
	case len(clip) >= 4 && string(clip[0:4]) == "OggS":
		return detectOgg(clip)
	case len(clip) >= 4 && bytes.Equal(clip[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return Info{Format: FormatWebM, SampleRateHz: 48000}
	case len(clip) >= 3 && string(clip[0:3]) == "ID3":
		return Info{Format: FormatMP3}
	case len(clip) >= 2 && clip[0] == 0xFF && clip[1]&0xE0 == 0xE0:
		return detectMP3Frame(clip)
	}
	return Info{Format: FormatUnknown}
}

// detectWAV walks the RIFF chunks until it finds "fmt ".
func detectWAV(clip []byte) Info {
	info := Info{Format: FormatWAV}
	off := 12
	for off+8 <= len(clip) {
		id := string(clip[off : off+4])
		size := int(binary.LittleEndian.Uint32(clip[off+4 : off+8]))
		body := off + 8
		if id == "fmt " {
			if body+16 > len(clip) {
				return info
			}
			info.PCMFormat = int(binary.LittleEndian.Uint16(clip[body : body+2]))
			info.Channels = int(binary.LittleEndian.Uint16(clip[body+2 : body+4]))
			info.SampleRateHz = int(binary.LittleEndian.Uint32(clip[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(clip[body+14 : body+16]))
			return info
		}
		// chunks are word aligned
		off = body + size + size%2
	}
	return info
}

func detectFLAC(clip []byte) Info {
	info := Info{Format: FormatFLAC}
	// "fLaC" + block header (4) + STREAMINFO: 10 bytes of block/frame sizes,
	// then 20 bits of sample rate and 3 bits of channels-1.
	if len(clip) < 21 {
		return info
	}
	info.SampleRateHz = int(clip[18])<<12 | int(clip[19])<<4 | int(clip[20])>>4
	info.Channels = int((clip[20]>>1)&0x07) + 1
	return info
}

func detectOgg(clip []byte) Info {
	idx := bytes.Index(clip, []byte("OpusHead"))
	if idx < 0 {
		return Info{Format: FormatUnknown}
	}
	info := Info{Format: FormatOggOpus, SampleRateHz: 48000}
	// OpusHead: magic(8) version(1) channels(1) pre-skip(2) input rate(4)
	if idx+16 <= len(clip) {
		info.Channels = int(clip[idx+9])
		if rate := int(binary.LittleEndian.Uint32(clip[idx+12 : idx+16])); rate > 0 {
			info.SampleRateHz = rate
		}
	}
	return info
}

var mp3SampleRates = map[byte][3]int{
	3: {44100, 48000, 32000}, // MPEG-1
	2: {22050, 24000, 16000}, // MPEG-2
	0: {11025, 12000, 8000},  // MPEG-2.5
}

func detectMP3Frame(clip []byte) Info {
	info := Info{Format: FormatMP3}
	if len(clip) < 3 {
		return info
	}
	version := (clip[1] >> 3) & 0x03
	layer := (clip[1] >> 1) & 0x03
	if layer == 0 || version == 1 {
		return Info{Format: FormatUnknown}
	}
	idx := (clip[2] >> 2) & 0x03
	if rates, ok := mp3SampleRates[version]; ok && idx < 3 {
		info.SampleRateHz = rates[idx]
	}
	return info
}
