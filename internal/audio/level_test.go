package audio

import (
	"testing"
)

func TestNewLevelMeter(t *testing.T) {
	meter, err := NewLevelMeter(8000)
	if err != nil {
		t.Fatalf("Failed to create level meter: %v", err)
	}

	if meter.Level() != 0 {
		t.Errorf("Expected initial level 0, got %f", meter.Level())
	}
}

func TestNewLevelMeterValidation(t *testing.T) {
	if _, err := NewLevelMeter(0); err == nil {
		t.Error("Expected error for zero reference ceiling")
	}

	if _, err := NewLevelMeter(-100); err == nil {
		t.Error("Expected error for negative reference ceiling")
	}
}

func TestMeasure(t *testing.T) {
	tests := []struct {
		name     string
		frame    []int16
		ceiling  float64
		expected float64
	}{
		{
			name:     "silence",
			frame:    make([]int16, 512),
			ceiling:  8000,
			expected: 0,
		},
		{
			name:     "constant amplitude",
			frame:    constantFrame(512, 4000),
			ceiling:  8000,
			expected: 0.5,
		},
		{
			name:     "negative amplitude counts as loudness",
			frame:    constantFrame(512, -4000),
			ceiling:  8000,
			expected: 0.5,
		},
		{
			name:     "clipped at 1.0",
			frame:    constantFrame(512, 20000),
			ceiling:  8000,
			expected: 1.0,
		},
		{
			name:     "empty frame",
			frame:    nil,
			ceiling:  8000,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meter, err := NewLevelMeter(tt.ceiling)
			if err != nil {
				t.Fatalf("Failed to create level meter: %v", err)
			}

			level := meter.Measure(tt.frame)
			if !almostEqual(level, tt.expected, 0.001) {
				t.Errorf("Expected level %f, got %f", tt.expected, level)
			}

			if meter.Level() != level {
				t.Errorf("Retained level %f does not match measured %f", meter.Level(), level)
			}
		})
	}
}

func TestLevelMeterPeakAndReset(t *testing.T) {
	meter, err := NewLevelMeter(8000)
	if err != nil {
		t.Fatalf("Failed to create level meter: %v", err)
	}

	meter.Measure(constantFrame(128, 2000))
	meter.Measure(constantFrame(128, 6000))
	meter.Measure(constantFrame(128, 1000))

	stats := meter.GetStats()
	if !almostEqual(stats.PeakLevel, 0.75, 0.001) {
		t.Errorf("Expected peak level 0.75, got %f", stats.PeakLevel)
	}

	if stats.FramesSeen != 3 {
		t.Errorf("Expected 3 frames seen, got %d", stats.FramesSeen)
	}

	meter.Reset()

	stats = meter.GetStats()
	if stats.CurrentLevel != 0 || stats.PeakLevel != 0 || stats.FramesSeen != 0 {
		t.Errorf("Expected cleared stats after reset, got %+v", stats)
	}
}

func constantFrame(n int, value int16) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = value
	}
	return frame
}

func almostEqual(a, b, eps float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= eps
}
