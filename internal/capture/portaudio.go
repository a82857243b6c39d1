package capture

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice implements Device on top of the default system microphone
// via PortAudio
type PortAudioDevice struct {
	stream *portaudio.Stream
	buffer []int16

	mu sync.Mutex
}

// NewPortAudioDevice returns an unopened PortAudio-backed device
func NewPortAudioDevice() Device {
	return &PortAudioDevice{}
}

// Open initializes PortAudio and starts a mono PCM-16 input stream
func (d *PortAudioDevice) Open(sampleRate, frameSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		return fmt.Errorf("device already open")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	d.buffer = make([]int16, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, d.buffer)
	if err != nil {
		portaudio.Terminate()
		return classifyOpenError(err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return classifyOpenError(err)
	}

	d.stream = stream
	return nil
}

// Read blocks until the next frame is captured and returns a copy of it
func (d *PortAudioDevice) Read() ([]int16, error) {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()

	if stream == nil {
		return nil, fmt.Errorf("device not open")
	}

	if err := stream.Read(); err != nil {
		return nil, fmt.Errorf("failed to read audio frame: %w", err)
	}

	frame := make([]int16, len(d.buffer))
	copy(frame, d.buffer)
	return frame, nil
}

// Pause suspends the input stream
func (d *PortAudioDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return fmt.Errorf("device not open")
	}

	if err := d.stream.Stop(); err != nil {
		return fmt.Errorf("failed to pause stream: %w", err)
	}

	return nil
}

// Resume continues a paused input stream
func (d *PortAudioDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return fmt.Errorf("device not open")
	}

	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("failed to resume stream: %w", err)
	}

	return nil
}

// Close stops the stream and releases the input device
func (d *PortAudioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return nil
	}

	var firstErr error
	if err := d.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := d.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	d.stream = nil
	portaudio.Terminate()

	if firstErr != nil {
		return fmt.Errorf("failed to close device: %w", firstErr)
	}
	return nil
}

// classifyOpenError maps PortAudio open failures onto the package sentinels
// so callers can offer the right retry affordance
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
