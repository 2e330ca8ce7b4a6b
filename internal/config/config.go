// Package config provides the configuration schema and loader for the
// voxdispatch server.
package config

import "github.com/fieldops/voxdispatch/pkg/audio"

// LogLevel controls log verbosity for the voxdispatch server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxdispatch.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Audio    AudioConfig    `yaml:"audio"`
}

// ServerConfig holds network and logging settings for the admin endpoint.
type ServerConfig struct {
	// ListenAddr is the TCP address the admin server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderConfig selects and authenticates the realtime speech backend.
type ProviderConfig struct {
	// Name selects the backend implementation (currently "openai-realtime").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the backend API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default WebSocket endpoint.
	// Leave empty to use the built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the backend.
	Model string `yaml:"model"`

	// Voice selects the synthesized voice, when the backend supports it.
	Voice string `yaml:"voice"`

	// Instructions is the system prompt applied to each session.
	Instructions string `yaml:"instructions"`
}

// AudioConfig holds capture and playback parameters.
type AudioConfig struct {
	// SampleRate is the session sample rate in Hz. Defaults to 24000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSamples is the capture frame size in samples. Defaults to 4096.
	FrameSamples int `yaml:"frame_samples"`
}

// Default returns a Config populated with usable defaults for everything
// except the provider API key.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Provider: ProviderConfig{
			Name: "openai-realtime",
		},
		Audio: AudioConfig{
			SampleRate:   audio.SessionRate,
			FrameSamples: audio.DefaultFrameSamples,
		},
	}
}
