package audio

import (
	"testing"
	"time"
)

func TestNewChunkBuffer(t *testing.T) {
	buf, err := NewChunkBuffer(16000)
	if err != nil {
		t.Fatalf("Failed to create chunk buffer: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer, got %d samples", buf.Len())
	}

	if buf.Duration() != 0 {
		t.Errorf("Expected zero duration, got %v", buf.Duration())
	}
}

func TestNewChunkBufferValidation(t *testing.T) {
	if _, err := NewChunkBuffer(0); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	if _, err := NewChunkBuffer(-8000); err == nil {
		t.Error("Expected error for negative sample rate")
	}
}

func TestChunkBufferAppend(t *testing.T) {
	buf, err := NewChunkBuffer(16000)
	if err != nil {
		t.Fatalf("Failed to create chunk buffer: %v", err)
	}

	buf.Append([]int16{1, 2, 3})
	buf.Append([]int16{4, 5})
	buf.Append(nil) // ignored

	if buf.Len() != 5 {
		t.Errorf("Expected 5 samples, got %d", buf.Len())
	}

	samples := buf.Samples()
	expected := []int16{1, 2, 3, 4, 5}
	for i, want := range expected {
		if samples[i] != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, samples[i])
		}
	}

	stats := buf.GetStats()
	if stats.Frames != 2 {
		t.Errorf("Expected 2 frames, got %d", stats.Frames)
	}
}

func TestChunkBufferSamplesReturnsCopy(t *testing.T) {
	buf, err := NewChunkBuffer(16000)
	if err != nil {
		t.Fatalf("Failed to create chunk buffer: %v", err)
	}

	buf.Append([]int16{10, 20})

	samples := buf.Samples()
	samples[0] = 99

	if buf.Samples()[0] != 10 {
		t.Error("Samples() must return a copy, buffer was mutated through the returned slice")
	}
}

func TestChunkBufferDuration(t *testing.T) {
	buf, err := NewChunkBuffer(16000)
	if err != nil {
		t.Fatalf("Failed to create chunk buffer: %v", err)
	}

	// one second of audio at 16kHz
	buf.Append(make([]int16, 16000))

	if buf.Duration() != time.Second {
		t.Errorf("Expected 1s duration, got %v", buf.Duration())
	}

	// half a second more
	buf.Append(make([]int16, 8000))

	if buf.Duration() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s duration, got %v", buf.Duration())
	}
}

func TestChunkBufferReset(t *testing.T) {
	buf, err := NewChunkBuffer(16000)
	if err != nil {
		t.Fatalf("Failed to create chunk buffer: %v", err)
	}

	buf.Append(make([]int16, 1024))
	buf.Reset()

	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d samples", buf.Len())
	}

	stats := buf.GetStats()
	if stats.Frames != 0 {
		t.Errorf("Expected 0 frames after reset, got %d", stats.Frames)
	}
}
