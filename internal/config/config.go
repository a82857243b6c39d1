package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Audio     AudioConfig     `yaml:"audio"`
	Silence   SilenceConfig   `yaml:"silence"`
	Recording RecordingConfig `yaml:"recording"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ClientConfig contains remote API client configuration
type ClientConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"` // usually supplied via MIRRORPLAY_API_KEY
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// AudioConfig contains audio capture parameters
type AudioConfig struct {
	SampleRate       int     `yaml:"sample_rate"`
	Channels         int     `yaml:"channels"`
	BitDepth         int     `yaml:"bit_depth"`
	FrameSize        int     `yaml:"frame_size"`        // samples per device read
	ReferenceCeiling float64 `yaml:"reference_ceiling"` // amplitude mapped to level 1.0
}

// SilenceConfig contains silence auto-stop configuration
type SilenceConfig struct {
	ThresholdMs   int     `yaml:"threshold_ms"`   // quiet duration before auto-stop
	LoudnessFloor float64 `yaml:"loudness_floor"` // normalized level below which a sample is silent
}

// RecordingConfig contains recording lifecycle configuration
type RecordingConfig struct {
	MaxDuration        int      `yaml:"max_duration"` // seconds, hard cap per take
	PreferredEncodings []string `yaml:"preferred_encodings"`
}

// MonitorConfig contains local monitoring HTTP server configuration
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file, then applies environment
// overrides. The API key is taken from MIRRORPLAY_API_KEY when set so secrets
// can stay out of the YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv("MIRRORPLAY_API_KEY"); key != "" {
		config.Client.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Silence.Validate(); err != nil {
		return fmt.Errorf("silence config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates API client configuration
func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", c.Timeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", c.MaxRetries)
	}

	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}

	return nil
}

// Validate validates audio capture configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for speech capture, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.FrameSize < 64 || a.FrameSize > 8192 {
		return fmt.Errorf("frame_size must be between 64 and 8192 samples, got %d", a.FrameSize)
	}

	if a.ReferenceCeiling <= 0 {
		return fmt.Errorf("reference_ceiling must be positive, got %f", a.ReferenceCeiling)
	}

	return nil
}

// Validate validates silence detection configuration
func (s *SilenceConfig) Validate() error {
	if s.ThresholdMs < 500 {
		return fmt.Errorf("threshold_ms must be at least 500 ms, got %d", s.ThresholdMs)
	}

	if s.LoudnessFloor <= 0 || s.LoudnessFloor >= 1 {
		return fmt.Errorf("loudness_floor must be between 0 and 1 (exclusive), got %f", s.LoudnessFloor)
	}

	return nil
}

// Validate validates recording configuration
func (r *RecordingConfig) Validate() error {
	if r.MaxDuration < 1 {
		return fmt.Errorf("max_duration must be at least 1 second, got %d", r.MaxDuration)
	}

	if len(r.PreferredEncodings) == 0 {
		return fmt.Errorf("preferred_encodings cannot be empty")
	}

	return nil
}

// Validate validates monitor server configuration
func (m *MonitorConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("monitor port must be between 1 and 65535, got %d", m.Port)
		}

		if m.Address == "" {
			return fmt.Errorf("monitor address cannot be empty when monitoring is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the API client timeout as a time.Duration
func (c *ClientConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetThresholdDuration returns the silence threshold as a time.Duration
func (s *SilenceConfig) GetThresholdDuration() time.Duration {
	return time.Duration(s.ThresholdMs) * time.Millisecond
}

// GetMaxDuration returns the recording duration cap as a time.Duration
func (r *RecordingConfig) GetMaxDuration() time.Duration {
	return time.Duration(r.MaxDuration) * time.Second
}
