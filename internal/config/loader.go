package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/localbrain/voicecore/internal/tools"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"probe":   {"openai", "whisper"},
	"channel": {"openai-realtime"},
}

// Defaults applied by [ApplyDefaults] for fields left at their zero value.
const (
	DefaultWakeCooldownMs     = 3000
	DefaultPhoneticThreshold  = 0.82
	DefaultSilenceTimeoutMs   = 500
	DefaultRetentionMs        = 2000
	DefaultSegmentMinMs       = 500
	DefaultSegmentMaxMs       = 1500
	DefaultSessionSampleRate  = 24000
	DefaultProbeSampleRate    = 16000
	DefaultSegmenterMinFrames = 3
	DefaultSilenceThreshold   = 300.0
	DefaultActivityThreshold  = 600.0
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in default values for fields left at their zero value.
func ApplyDefaults(cfg *Config) {
	if cfg.Wake.CooldownMs == 0 {
		cfg.Wake.CooldownMs = DefaultWakeCooldownMs
	}
	if cfg.Wake.PhoneticThreshold == 0 {
		cfg.Wake.PhoneticThreshold = DefaultPhoneticThreshold
	}
	if cfg.Segmenter.SilenceTimeoutMs == 0 {
		cfg.Segmenter.SilenceTimeoutMs = DefaultSilenceTimeoutMs
	}
	if cfg.Segmenter.RetentionMs == 0 {
		cfg.Segmenter.RetentionMs = DefaultRetentionMs
	}
	if cfg.Segmenter.MinFrames == 0 {
		cfg.Segmenter.MinFrames = DefaultSegmenterMinFrames
	}
	if cfg.Segmenter.SilenceThreshold == 0 {
		cfg.Segmenter.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.Segmenter.ActivityThreshold == 0 {
		cfg.Segmenter.ActivityThreshold = DefaultActivityThreshold
	}
	if cfg.Segment.MinMs == 0 {
		cfg.Segment.MinMs = DefaultSegmentMinMs
	}
	if cfg.Segment.MaxMs == 0 {
		cfg.Segment.MaxMs = DefaultSegmentMaxMs
	}
	if cfg.Session.SampleRate == 0 {
		cfg.Session.SampleRate = DefaultSessionSampleRate
	}
	if cfg.Probe.SampleRate == 0 {
		cfg.Probe.SampleRate = DefaultProbeSampleRate
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Wake
	if cfg.Wake.Phrase == "" {
		errs = append(errs, errors.New("wake.phrase is required"))
	}
	if cfg.Wake.CooldownMs < 0 {
		errs = append(errs, fmt.Errorf("wake.cooldown_ms %d must not be negative", cfg.Wake.CooldownMs))
	}
	if cfg.Wake.PhoneticThreshold < 0 || cfg.Wake.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("wake.phonetic_threshold %.2f is out of range [0, 1]", cfg.Wake.PhoneticThreshold))
	}

	// Segmenter
	if cfg.Segmenter.SilenceTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_timeout_ms %d must be positive", cfg.Segmenter.SilenceTimeoutMs))
	}
	if cfg.Segmenter.RetentionMs <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.retention_ms %d must be positive", cfg.Segmenter.RetentionMs))
	}
	if cfg.Segmenter.SilenceThreshold > cfg.Segmenter.ActivityThreshold {
		errs = append(errs, fmt.Errorf("segmenter.silence_threshold %.3f must not exceed activity_threshold %.3f",
			cfg.Segmenter.SilenceThreshold, cfg.Segmenter.ActivityThreshold))
	}

	// Segment bounds
	if cfg.Segment.MinMs <= 0 {
		errs = append(errs, fmt.Errorf("segment.min_ms %d must be positive", cfg.Segment.MinMs))
	}
	if cfg.Segment.MaxMs < cfg.Segment.MinMs {
		errs = append(errs, fmt.Errorf("segment.max_ms %d must not be less than segment.min_ms %d", cfg.Segment.MaxMs, cfg.Segment.MinMs))
	}
	if cfg.Segment.MaxMs > cfg.Segmenter.RetentionMs {
		errs = append(errs, fmt.Errorf("segment.max_ms %d must not exceed segmenter.retention_ms %d", cfg.Segment.MaxMs, cfg.Segmenter.RetentionMs))
	}

	// Providers
	validateProviderName("probe", cfg.Probe.Provider)
	validateProviderName("channel", cfg.Channel.Provider)
	if cfg.Probe.Provider == "openai" && cfg.Probe.APIKey == "" {
		errs = append(errs, errors.New("probe.api_key is required for the openai probe"))
	}
	if cfg.Probe.Provider == "whisper" && cfg.Probe.Model == "" {
		errs = append(errs, errors.New("probe.model (ggml model path) is required for the whisper probe"))
	}
	if cfg.Channel.Provider != "" && cfg.Channel.APIKey == "" {
		errs = append(errs, errors.New("channel.api_key is required"))
	}
	if cfg.Channel.Provider == "" {
		slog.Warn("no channel provider configured; wake activations will fail to open sessions")
	}

	// Tool servers
	seen := make(map[string]int, len(cfg.Tools.Servers))
	for i, srv := range cfg.Tools.Servers {
		prefix := fmt.Sprintf("tools.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == tools.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == tools.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
