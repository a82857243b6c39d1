package audio

import (
	"encoding/binary"
	"fmt"
)

// Supported encodings for finalized recordings. "raw" is little-endian PCM-16
// with no container and always works, so it serves as the safe fallback.
const (
	FormatWAV = "wav"
	FormatRaw = "raw"
)

var supportedFormats = map[string]bool{
	FormatWAV: true,
	FormatRaw: true,
}

// ProbeEncoding walks the preferred encoding list and returns the first
// supported format. If none of the preferences is supported it falls back to
// raw PCM rather than failing the recording; an error is returned only when
// the preference list is empty, which indicates a configuration bug.
func ProbeEncoding(preferred []string) (string, error) {
	if len(preferred) == 0 {
		return "", fmt.Errorf("no preferred encodings configured")
	}

	for _, format := range preferred {
		if supportedFormats[format] {
			return format, nil
		}
	}

	return FormatRaw, nil
}

// Encode serializes PCM-16 samples into the given format
func Encode(format string, samples []int16, sampleRate int) ([]byte, error) {
	switch format {
	case FormatWAV:
		return EncodeWAV(samples, sampleRate)
	case FormatRaw:
		return encodeRaw(samples)
	default:
		return nil, fmt.Errorf("unsupported encoding format: %s", format)
	}
}

// encodeRaw serializes samples as little-endian PCM-16 bytes
func encodeRaw(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}

	return out, nil
}
