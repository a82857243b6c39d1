package audio

import (
	"fmt"
	"sync"
	"time"
)

// ChunkBuffer accumulates PCM-16 frames for a single recording. Frames arrive
// in capture order from the local device, so no sequence reordering is needed;
// the buffer is append-only until finalized or reset.
type ChunkBuffer struct {
	sampleRate int

	samples    []int16
	frameCount uint64
	lastUpdate time.Time

	mu sync.RWMutex
}

// BufferStats represents chunk buffer statistics for monitoring
type BufferStats struct {
	SampleRate  int           `json:"sample_rate"`
	Samples     int           `json:"samples"`
	Frames      uint64        `json:"frames"`
	Duration    time.Duration `json:"duration"`
	LastUpdate  time.Time     `json:"last_update"`
}

// NewChunkBuffer creates a new chunk buffer for the given sample rate
func NewChunkBuffer(sampleRate int) (*ChunkBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &ChunkBuffer{
		sampleRate: sampleRate,
		samples:    make([]int16, 0, sampleRate*2), // pre-allocate for 2 seconds
	}, nil
}

// Append adds a captured frame to the buffer
func (b *ChunkBuffer) Append(frame []int16) {
	if len(frame) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, frame...)
	b.frameCount++
	b.lastUpdate = time.Now()
}

// Samples returns a copy of the accumulated samples
func (b *ChunkBuffer) Samples() []int16 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]int16, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the number of accumulated samples
func (b *ChunkBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Duration returns the accumulated audio duration
func (b *ChunkBuffer) Duration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return time.Duration(float64(len(b.samples)) / float64(b.sampleRate) * float64(time.Second))
}

// Reset discards all accumulated audio for a new recording
func (b *ChunkBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.frameCount = 0
	b.lastUpdate = time.Time{}
}

// GetStats returns current buffer statistics
func (b *ChunkBuffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		SampleRate: b.sampleRate,
		Samples:    len(b.samples),
		Frames:     b.frameCount,
		Duration:   time.Duration(float64(len(b.samples)) / float64(b.sampleRate) * float64(time.Second)),
		LastUpdate: b.lastUpdate,
	}
}
