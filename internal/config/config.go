package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port          int    `yaml:"port"`
	Address       string `yaml:"address"`
	MaxUploadSize int64  `yaml:"max_upload_size"` // bytes
}

// AudioConfig contains audio normalization parameters
type AudioConfig struct {
	TargetSampleRate int    `yaml:"target_sample_rate"`
	TargetChannels   int    `yaml:"target_channels"`
	BitDepth         int    `yaml:"bit_depth"`
	FFmpegPath       string `yaml:"ffmpeg_path"`
	FFprobePath      string `yaml:"ffprobe_path"`
}

// VADConfig contains Voice Activity Detection configuration
type VADConfig struct {
	ModelPath  string  `yaml:"model_path"` // Silero ONNX model; empty selects the energy detector
	Threshold  float64 `yaml:"threshold"`
	WindowSize int     `yaml:"window_size"` // samples
}

// TranscriptionConfig contains remote transcription API configuration
type TranscriptionConfig struct {
	EndpointBase string  `yaml:"endpoint_base"`
	Model        string  `yaml:"model"`
	APIKey       string  `yaml:"api_key"`
	Timeout      int     `yaml:"timeout"` // seconds
	MaxRetries   int     `yaml:"max_retries"`
	RetryDelay   float64 `yaml:"retry_delay"` // seconds, initial backoff
	WarmUpOnBoot bool    `yaml:"warm_up_on_boot"`
}

// StorageConfig contains SQLite storage configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file, then applies environment
// variable overrides before validating.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides overlays deployment environment variables onto the file
// configuration. Variable names match the original deployment.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HF_TOKEN"); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("WHISPER_MODEL"); v != "" {
		c.Transcription.Model = v
	}
	if v := os.Getenv("HF_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Transcription.MaxRetries = n
		}
	}
	if v := os.Getenv("HF_RETRY_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Transcription.RetryDelay = f
		}
	}
	if v := os.Getenv("VAD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.VAD.Threshold = f
		}
	}
	if v := os.Getenv("STT_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.MaxUploadSize < 1024 {
		return fmt.Errorf("max_upload_size must be at least 1024 bytes, got %d", h.MaxUploadSize)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.TargetSampleRate != 16000 {
		return fmt.Errorf("target_sample_rate must be 16000 Hz for the transcription model, got %d", a.TargetSampleRate)
	}

	if a.TargetChannels != 1 {
		return fmt.Errorf("target_channels must be 1 (mono), got %d", a.TargetChannels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.WindowSize < 256 || v.WindowSize > 2048 {
		return fmt.Errorf("window_size must be between 256 and 2048 samples, got %d", v.WindowSize)
	}

	return nil
}

// Validate validates transcription configuration. The API key may be empty:
// the service still starts and the remote endpoint rejects unauthenticated
// calls on its own.
func (t *TranscriptionConfig) Validate() error {
	if t.EndpointBase == "" {
		return fmt.Errorf("endpoint_base cannot be empty")
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive, got %f", t.RetryDelay)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.DatabasePath == "" {
		return fmt.Errorf("database_path cannot be empty")
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

// Endpoint returns the full model endpoint URL
func (t *TranscriptionConfig) Endpoint() string {
	return t.EndpointBase + "/" + t.Model
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetRetryDelayDuration returns the initial retry delay as a time.Duration
func (t *TranscriptionConfig) GetRetryDelayDuration() time.Duration {
	return time.Duration(t.RetryDelay * float64(time.Second))
}
