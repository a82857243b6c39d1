package audio

import (
	"fmt"
	"sync"
	"time"
)

// LevelMeter computes a normalized loudness value in [0, 1] from PCM-16
// frames. The mean absolute amplitude of each frame is divided by a fixed
// reference ceiling and clamped to 1.0. The latest value is retained for
// consumers that sample asynchronously (silence detection, waveform display).
type LevelMeter struct {
	referenceCeiling float64

	currentLevel float64
	peakLevel    float64
	framesSeen   uint64
	lastUpdate   time.Time

	mu sync.RWMutex
}

// LevelMeterStats represents level meter statistics for monitoring
type LevelMeterStats struct {
	CurrentLevel float64   `json:"current_level"`
	PeakLevel    float64   `json:"peak_level"`
	FramesSeen   uint64    `json:"frames_seen"`
	LastUpdate   time.Time `json:"last_update"`
}

// NewLevelMeter creates a new level meter with the given reference ceiling
func NewLevelMeter(referenceCeiling float64) (*LevelMeter, error) {
	if referenceCeiling <= 0 {
		return nil, fmt.Errorf("reference ceiling must be positive, got %f", referenceCeiling)
	}

	return &LevelMeter{
		referenceCeiling: referenceCeiling,
	}, nil
}

// Measure computes the normalized loudness of a frame, updates the retained
// level, and returns the new value.
func (m *LevelMeter) Measure(frame []int16) float64 {
	var sum float64
	for _, sample := range frame {
		if sample < 0 {
			sum -= float64(sample)
		} else {
			sum += float64(sample)
		}
	}

	level := 0.0
	if len(frame) > 0 {
		level = sum / float64(len(frame)) / m.referenceCeiling
	}
	if level > 1.0 {
		level = 1.0
	}

	m.mu.Lock()
	m.currentLevel = level
	if level > m.peakLevel {
		m.peakLevel = level
	}
	m.framesSeen++
	m.lastUpdate = time.Now()
	m.mu.Unlock()

	return level
}

// Level returns the most recently measured loudness value
func (m *LevelMeter) Level() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLevel
}

// Reset clears the retained level state for a new recording
func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentLevel = 0
	m.peakLevel = 0
	m.framesSeen = 0
	m.lastUpdate = time.Time{}
}

// GetStats returns current level meter statistics
func (m *LevelMeter) GetStats() LevelMeterStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return LevelMeterStats{
		CurrentLevel: m.currentLevel,
		PeakLevel:    m.peakLevel,
		FramesSeen:   m.framesSeen,
		LastUpdate:   m.lastUpdate,
	}
}
