package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/audio"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/silence"
)

// State represents the recorder lifecycle state
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateRecording
	StatePaused
	StateStopped
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Recording is one finalized capture payload ready for submission
type Recording struct {
	ID          string        `json:"id"`
	Format      string        `json:"format"`
	AudioData   []byte        `json:"-"`
	SampleRate  int           `json:"sample_rate"`
	Duration    time.Duration `json:"duration"`
	StartedAt   time.Time     `json:"started_at"`
	StoppedAt   time.Time     `json:"stopped_at"`
	AutoStopped bool          `json:"auto_stopped"`
}

// Config contains recorder configuration
type Config struct {
	SampleRate         int
	FrameSize          int
	ReferenceCeiling   float64
	SilenceThreshold   time.Duration
	LoudnessFloor      float64
	MaxDuration        time.Duration // hard cap per take, 0 disables
	PreferredEncodings []string
	DeviceFactory      DeviceFactory

	// OnAutoStop is invoked with the finalized recording when the silence
	// detector (or the duration cap) stops the take. Explicit Stop calls do
	// not trigger it; the caller already holds the result.
	OnAutoStop func(*Recording)
}

// Recorder owns the capture device lifecycle for one session at a time:
// Idle -> Requesting -> Recording -> (Paused <-> Recording) -> Stopped -> Idle.
// At most one device is held open at any moment; starting a new recording
// first releases any prior session's device.
type Recorder struct {
	config Config
	logger *slog.Logger

	meter    *audio.LevelMeter
	buffer   *audio.ChunkBuffer
	detector *silence.Detector

	state      State
	device     Device
	format     string
	startedAt  time.Time
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	// Statistics
	recordingsStarted   uint64
	recordingsCompleted uint64
	autoStops           uint64

	mu sync.Mutex
}

// RecorderStats represents recorder statistics for monitoring
type RecorderStats struct {
	State               string        `json:"state"`
	RecordingsStarted   uint64        `json:"recordings_started"`
	RecordingsCompleted uint64        `json:"recordings_completed"`
	AutoStops           uint64        `json:"auto_stops"`
	CurrentLevel        float64       `json:"current_level"`
	Elapsed             time.Duration `json:"elapsed"`
}

// NewRecorder creates a recorder with its level meter and silence detector
func NewRecorder(config Config, logger *slog.Logger) (*Recorder, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", config.FrameSize)
	}

	if config.ReferenceCeiling <= 0 {
		config.ReferenceCeiling = 8000
	}

	if config.SilenceThreshold <= 0 {
		config.SilenceThreshold = silence.DefaultThreshold
	}

	if config.LoudnessFloor <= 0 {
		config.LoudnessFloor = silence.DefaultLoudnessFloor
	}

	if len(config.PreferredEncodings) == 0 {
		config.PreferredEncodings = []string{audio.FormatWAV, audio.FormatRaw}
	}

	if config.DeviceFactory == nil {
		config.DeviceFactory = NewPortAudioDevice
	}

	meter, err := audio.NewLevelMeter(config.ReferenceCeiling)
	if err != nil {
		return nil, fmt.Errorf("failed to create level meter: %w", err)
	}

	buffer, err := audio.NewChunkBuffer(config.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk buffer: %w", err)
	}

	r := &Recorder{
		config: config,
		logger: logger,
		meter:  meter,
		buffer: buffer,
		state:  StateIdle,
	}

	detector, err := silence.NewDetector(config.SilenceThreshold, config.LoudnessFloor, r.handleAutoStop)
	if err != nil {
		return nil, fmt.Errorf("failed to create silence detector: %w", err)
	}
	r.detector = detector

	return r, nil
}

// Start acquires the microphone and begins buffering frames. The encoding is
// probed before the device is touched so an unsupported format fails fast.
// Any recording still active is stopped and its device released first.
func (r *Recorder) Start(ctx context.Context) error {
	// Exclusive ownership: release any prior session's hold before opening
	// a new device.
	if r.State() == StateRecording || r.State() == StatePaused {
		r.logger.Warn("Starting new recording while one is active, releasing prior session")
		if _, err := r.Stop(); err != nil && err != ErrNotRecording {
			r.logger.Warn("Failed to stop prior recording", slog.String("error", err.Error()))
		}
	}

	format, err := audio.ProbeEncoding(r.config.PreferredEncodings)
	if err != nil {
		return fmt.Errorf("encoding probe failed: %w", err)
	}

	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return fmt.Errorf("recorder busy in state %s", r.state)
	}
	r.state = StateRequesting
	factory := r.config.DeviceFactory
	r.mu.Unlock()

	device := factory()
	if err := device.Open(r.config.SampleRate, r.config.FrameSize); err != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()

		r.logger.Warn("Failed to open capture device", slog.String("error", err.Error()))
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.device = device
	r.format = format
	r.state = StateRecording
	r.startedAt = time.Now()
	r.loopCancel = cancel
	r.loopDone = done
	r.recordingsStarted++
	r.mu.Unlock()

	r.buffer.Reset()
	r.meter.Reset()
	r.detector.Reset()
	r.detector.Arm()

	go r.readLoop(loopCtx, device, done)

	r.logger.Info("Recording started",
		slog.String("format", format),
		slog.Int("sample_rate", r.config.SampleRate),
		slog.Duration("silence_threshold", r.config.SilenceThreshold),
	)

	return nil
}

// Stop ends the recording by explicit user action, cancelling any pending
// silence callback, and returns the finalized payload
func (r *Recorder) Stop() (*Recording, error) {
	r.detector.Cancel()
	return r.finalize(false)
}

// Pause suspends the device without losing buffered audio. The silence
// detector is disarmed while paused so the quiet window cannot span the gap.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return ErrNotRecording
	}

	if err := r.device.Pause(); err != nil {
		return fmt.Errorf("failed to pause device: %w", err)
	}

	r.detector.Cancel()
	r.state = StatePaused
	return nil
}

// Resume continues a paused recording and re-arms the silence detector
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused {
		return fmt.Errorf("cannot resume from state %s", r.state)
	}

	if err := r.device.Resume(); err != nil {
		return fmt.Errorf("failed to resume device: %w", err)
	}

	r.detector.Arm()
	r.state = StateRecording
	return nil
}

// State returns the current lifecycle state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Level returns the most recent normalized loudness value
func (r *Recorder) Level() float64 {
	return r.meter.Level()
}

// Elapsed returns the duration of audio captured so far
func (r *Recorder) Elapsed() time.Duration {
	return r.buffer.Duration()
}

// GetStats returns current recorder statistics
func (r *Recorder) GetStats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RecorderStats{
		State:               r.state.String(),
		RecordingsStarted:   r.recordingsStarted,
		RecordingsCompleted: r.recordingsCompleted,
		AutoStops:           r.autoStops,
		CurrentLevel:        r.meter.Level(),
		Elapsed:             r.buffer.Duration(),
	}
}

// readLoop pulls frames from the device until cancelled, feeding the buffer,
// level meter, and silence detector
func (r *Recorder) readLoop(ctx context.Context, device Device, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if r.State() == StatePaused {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		frame, err := device.Read()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("Device read failed, ending capture loop", slog.String("error", err.Error()))
			go r.autoFinalize()
			return
		}

		r.buffer.Append(frame)
		level := r.meter.Measure(frame)
		r.detector.Sample(level)

		if r.config.MaxDuration > 0 && r.buffer.Duration() >= r.config.MaxDuration {
			r.logger.Info("Recording reached duration cap", slog.Duration("max_duration", r.config.MaxDuration))
			r.detector.Cancel()
			go r.autoFinalize()
			return
		}
	}
}

// handleAutoStop is the silence detector callback. Finalization runs on its
// own goroutine because the callback fires inside the read loop, which the
// finalizer must wait on.
func (r *Recorder) handleAutoStop() {
	r.logger.Info("Silence threshold reached, auto-stopping recording")
	go r.autoFinalize()
}

// autoFinalize finalizes the take and delivers it to the auto-stop handler
func (r *Recorder) autoFinalize() {
	recording, err := r.finalize(true)
	if err != nil {
		if err != ErrNotRecording {
			r.logger.Warn("Auto-stop finalization failed", slog.String("error", err.Error()))
		}
		return
	}

	if r.config.OnAutoStop != nil {
		r.config.OnAutoStop(recording)
	}
}

// finalize performs the single stop path: cancel the read loop, release the
// device, and encode the buffered samples into one payload. The state
// transition under the lock guarantees exactly one finalizer wins when
// explicit and automatic stops race.
func (r *Recorder) finalize(auto bool) (*Recording, error) {
	r.mu.Lock()
	if r.state != StateRecording && r.state != StatePaused {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.state = StateStopped
	device := r.device
	cancel := r.loopCancel
	done := r.loopDone
	format := r.format
	startedAt := r.startedAt
	r.mu.Unlock()

	r.detector.Cancel()
	cancel()
	<-done

	if err := device.Close(); err != nil {
		r.logger.Warn("Error releasing capture device", slog.String("error", err.Error()))
	}

	samples := r.buffer.Samples()
	duration := r.buffer.Duration()
	stoppedAt := time.Now()

	r.mu.Lock()
	r.device = nil
	r.loopCancel = nil
	r.loopDone = nil
	r.state = StateIdle
	if auto {
		r.autoStops++
	}
	r.mu.Unlock()

	if len(samples) == 0 {
		return nil, fmt.Errorf("recording captured no audio")
	}

	payload, err := audio.Encode(format, samples, r.config.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recording: %w", err)
	}

	r.mu.Lock()
	r.recordingsCompleted++
	r.mu.Unlock()

	recording := &Recording{
		ID:          uuid.NewString(),
		Format:      format,
		AudioData:   payload,
		SampleRate:  r.config.SampleRate,
		Duration:    duration,
		StartedAt:   startedAt,
		StoppedAt:   stoppedAt,
		AutoStopped: auto,
	}

	r.logger.Info("Recording finalized",
		slog.String("recording_id", recording.ID),
		slog.String("format", format),
		slog.Float64("duration", duration.Seconds()),
		slog.Int("payload_bytes", len(payload)),
		slog.Bool("auto_stopped", auto),
	)

	return recording, nil
}
