package silence

import (
	"fmt"
	"sync"
	"time"
)

// Default tuning. The fixed floor and threshold trade responsiveness against
// false early cutoffs; no adaptive noise-floor calibration is performed.
const (
	DefaultThreshold     = 4 * time.Second
	DefaultLoudnessFloor = 0.05
)

// Detector watches a stream of loudness samples and invokes a stop callback
// once the level has stayed below the floor for the configured threshold.
// After firing it ignores further samples until Reset; Cancel disarms it so a
// user's explicit stop cannot race into a double-stop.
type Detector struct {
	threshold     time.Duration
	loudnessFloor float64
	onSilence     func()

	armed         bool
	fired         bool
	lastSound     time.Time
	samplesSeen   uint64
	silentSamples uint64

	now func() time.Time // overridable for tests

	mu sync.Mutex
}

// DetectorStats represents detector statistics for monitoring
type DetectorStats struct {
	Threshold     time.Duration `json:"threshold"`
	LoudnessFloor float64       `json:"loudness_floor"`
	Armed         bool          `json:"armed"`
	Fired         bool          `json:"fired"`
	SamplesSeen   uint64        `json:"samples_seen"`
	SilentSamples uint64        `json:"silent_samples"`
}

// NewDetector creates a silence detector that calls onSilence when the quiet
// duration is exceeded
func NewDetector(threshold time.Duration, loudnessFloor float64, onSilence func()) (*Detector, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %v", threshold)
	}

	if loudnessFloor <= 0 || loudnessFloor >= 1 {
		return nil, fmt.Errorf("loudness floor must be between 0 and 1 (exclusive), got %f", loudnessFloor)
	}

	if onSilence == nil {
		return nil, fmt.Errorf("silence callback cannot be nil")
	}

	return &Detector{
		threshold:     threshold,
		loudnessFloor: loudnessFloor,
		onSilence:     onSilence,
		now:           time.Now,
	}, nil
}

// Arm starts a new observation window. The quiet timer begins at the moment
// of arming, so a recording that never rises above the floor still stops.
func (d *Detector) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.armed = true
	d.fired = false
	d.lastSound = d.now()
}

// Sample feeds one loudness measurement to the detector. An above-floor level
// resets the quiet timer; otherwise, once the timer exceeds the threshold the
// stop callback fires exactly once and the detector disarms itself.
func (d *Detector) Sample(level float64) {
	d.mu.Lock()

	if !d.armed || d.fired {
		d.mu.Unlock()
		return
	}

	d.samplesSeen++
	now := d.now()

	if level > d.loudnessFloor {
		d.lastSound = now
		d.mu.Unlock()
		return
	}

	d.silentSamples++

	if now.Sub(d.lastSound) < d.threshold {
		d.mu.Unlock()
		return
	}

	d.fired = true
	d.armed = false
	callback := d.onSilence
	d.mu.Unlock()

	// Invoked outside the lock: the callback typically stops the recorder,
	// which may call back into Cancel.
	callback()
}

// Cancel disarms the detector so no pending callback fires. Used when the
// user taps explicit stop before the quiet timer elapses.
func (d *Detector) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.armed = false
}

// Reset re-arms the detector for a new recording and clears statistics
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.armed = false
	d.fired = false
	d.lastSound = time.Time{}
	d.samplesSeen = 0
	d.silentSamples = 0
}

// Armed reports whether the detector is currently watching for silence
func (d *Detector) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return DetectorStats{
		Threshold:     d.threshold,
		LoudnessFloor: d.loudnessFloor,
		Armed:         d.armed,
		Fired:         d.fired,
		SamplesSeen:   d.samplesSeen,
		SilentSamples: d.silentSamples,
	}
}
