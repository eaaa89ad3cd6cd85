// Package config provides the configuration schema and loader for the
// voicecore interaction controller.
package config

import "github.com/localbrain/voicecore/internal/tools"

// LogLevel controls log verbosity for the voicecore process.
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

// Config is the root configuration structure for voicecore.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Wake      WakeConfig      `yaml:"wake"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Segment   SegmentConfig   `yaml:"segment"`
	Session   SessionConfig   `yaml:"session"`
	Probe     ProbeConfig     `yaml:"probe"`
	Channel   ChannelConfig   `yaml:"channel"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// ServerConfig holds logging and observability settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// WakeConfig controls the wake-phrase gate.
type WakeConfig struct {
	// Phrase is the canonical wake phrase (e.g., "hey brain").
	Phrase string `yaml:"phrase"`

	// Aliases lists additional accepted renderings of the phrase, covering
	// common recogniser misspellings (e.g., "hey brian"). Matching against
	// aliases is exact containment; no variants are generated automatically.
	Aliases []string `yaml:"aliases"`

	// CooldownMs is the minimum interval between accepted activations in
	// milliseconds. Defaults to 3000.
	CooldownMs int `yaml:"cooldown_ms"`

	// PhoneticMatch enables a phonetic fallback comparison when literal
	// containment fails, absorbing recogniser misspellings not covered by
	// Aliases.
	PhoneticMatch bool `yaml:"phonetic_match"`

	// PhoneticThreshold is the minimum similarity score in [0,1] for a
	// phonetic match. Defaults to 0.82.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
}

// SegmenterConfig controls speech segment accumulation.
type SegmenterConfig struct {
	// SilenceTimeoutMs clears the rolling buffer after this much sustained
	// silence. Defaults to 500.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// RetentionMs bounds the rolling buffer duration. Defaults to 2000.
	RetentionMs int `yaml:"retention_ms"`

	// SilenceThreshold is the RMS level (in 16-bit PCM sample units) below
	// which a frame counts as silence. Defaults to 300.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// ActivityThreshold is the RMS level (in 16-bit PCM sample units) above
	// which a frame counts as speech. Defaults to 600.
	ActivityThreshold float64 `yaml:"activity_threshold"`

	// MinFrames is the minimum number of active frames before a candidate
	// segment is emitted.
	MinFrames int `yaml:"min_frames"`

	// NoiseSuppression zeroes sub-threshold frames before buffering.
	NoiseSuppression bool `yaml:"noise_suppression"`
}

// SegmentConfig bounds candidate segment durations handed to the probe.
type SegmentConfig struct {
	// MinMs is the minimum candidate duration in milliseconds. Defaults to 500.
	MinMs int `yaml:"min_ms"`

	// MaxMs is the maximum candidate duration in milliseconds. Defaults to 1500.
	MaxMs int `yaml:"max_ms"`
}

// SessionConfig configures the remote agent session.
type SessionConfig struct {
	// Voice selects the agent's synthesised voice.
	Voice string `yaml:"voice"`

	// Instructions is the system-level prompt defining the agent's behaviour.
	Instructions string `yaml:"instructions"`

	// SampleRate is the PCM sample rate for session audio in Hz. Defaults to
	// 24000.
	SampleRate int `yaml:"sample_rate"`
}

// ProbeConfig selects and configures the wake-word probe backend.
type ProbeConfig struct {
	// Provider selects the probe implementation ("openai" or "whisper").
	Provider string `yaml:"provider"`

	// APIKey authenticates against a remote probe provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "whisper-1") or, for
	// the whisper provider, the path to a ggml model file.
	Model string `yaml:"model"`

	// Language is an ISO-639-1 language hint.
	Language string `yaml:"language"`

	// SampleRate is the PCM sample rate for probe audio in Hz. Defaults to
	// 16000.
	SampleRate int `yaml:"sample_rate"`
}

// ChannelConfig selects and configures the remote channel backend.
type ChannelConfig struct {
	// Provider selects the channel implementation ("openai-realtime").
	Provider string `yaml:"provider"`

	// APIKey authenticates against the channel provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default WebSocket endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider.
	Model string `yaml:"model"`
}

// ToolsConfig holds the list of MCP tool servers to connect to.
type ToolsConfig struct {
	Servers []ToolServerConfig `yaml:"servers"`
}

// ToolServerConfig describes how to connect to a single MCP tool server.
type ToolServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport tools.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is "streamable-http".
	// Ignored for stdio transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}
