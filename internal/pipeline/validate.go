package pipeline

import (
	"bytes"
	"errors"
	"fmt"
)

// Audio validation errors. They end up verbatim in the job's error field, so
// keep the wording client-friendly.
var (
	// ErrEmptyAudio indicates the stored object had no bytes.
	ErrEmptyAudio = errors.New("audio payload is empty")

	// ErrAudioTooLarge indicates the payload exceeds the configured ceiling.
	ErrAudioTooLarge = errors.New("audio payload exceeds size limit")

	// ErrUnknownFormat indicates the payload matches no supported container
	// signature.
	ErrUnknownFormat = errors.New("unrecognized audio format")
)

// DefaultMaxAudioBytes caps audio payloads at 100 MiB unless configured
// otherwise.
const DefaultMaxAudioBytes int64 = 100 << 20

// DetectFormat sniffs the container format from the payload's magic bytes.
// Returns the format name and true, or "" and false for unknown data.
func DetectFormat(data []byte) (string, bool) {
	if len(data) < 12 {
		return "", false
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return "wav", true
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3", true
	case data[0] == 0xFF && data[1]&0xE0 == 0xE0: // MPEG frame sync
		return "mp3", true
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg", true
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac", true
	case bytes.Equal(data[4:8], []byte("ftyp")): // ISO BMFF (m4a/mp4)
		return "m4a", true
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}): // EBML (webm)
		return "webm", true
	}
	return "", false
}

// ValidateAudio checks a fetched payload before it is sent to the STT
// provider: it must be non-empty, within maxBytes, and carry a recognizable
// audio container signature.
func ValidateAudio(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return ErrEmptyAudio
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAudioBytes
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("%w (%d bytes, limit %d)", ErrAudioTooLarge, len(data), maxBytes)
	}
	if _, ok := DetectFormat(data); !ok {
		return ErrUnknownFormat
	}
	return nil
}
