package capture

import (
	"errors"
)

// Sentinel errors for device acquisition. Permission denial is recoverable
// (the user is prompted to retry); an unavailable device is not.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	ErrNotRecording      = errors.New("no active recording")
)

// Device abstracts a platform audio input. One Device corresponds to one
// microphone-open-to-microphone-closed lifecycle; Close releases the
// underlying input so another capture session can acquire it.
type Device interface {
	// Open acquires the input and starts the stream
	Open(sampleRate, frameSize int) error

	// Read blocks until the next frame of PCM-16 samples is available
	Read() ([]int16, error)

	// Pause suspends the stream without losing already-captured audio
	Pause() error

	// Resume continues a paused stream
	Resume() error

	// Close stops the stream and releases the input device
	Close() error
}

// DeviceFactory constructs a Device for a new capture session
type DeviceFactory func() Device
