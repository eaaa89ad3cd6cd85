package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  log_level: info
  metrics_addr: ":9090"
wake:
  phrase: "hey brain"
  aliases: ["hey brian", "hey brain!"]
  phonetic_match: true
segmenter:
  activity_threshold: 800
  silence_threshold: 250
session:
  voice: alloy
  instructions: "You are a helpful assistant."
probe:
  provider: openai
  api_key: sk-test
channel:
  provider: openai-realtime
  api_key: sk-test
tools:
  servers:
    - name: dice
      transport: stdio
      command: /usr/local/bin/mcp-dice
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Wake.Phrase != "hey brain" {
		t.Errorf("wake.phrase = %q", cfg.Wake.Phrase)
	}
	if len(cfg.Wake.Aliases) != 2 {
		t.Errorf("wake.aliases = %v", cfg.Wake.Aliases)
	}

	// Defaults fill unset fields.
	if cfg.Wake.CooldownMs != DefaultWakeCooldownMs {
		t.Errorf("wake.cooldown_ms = %d, want %d", cfg.Wake.CooldownMs, DefaultWakeCooldownMs)
	}
	if cfg.Segment.MinMs != DefaultSegmentMinMs || cfg.Segment.MaxMs != DefaultSegmentMaxMs {
		t.Errorf("segment bounds = (%d, %d), want (%d, %d)",
			cfg.Segment.MinMs, cfg.Segment.MaxMs, DefaultSegmentMinMs, DefaultSegmentMaxMs)
	}
	if cfg.Session.SampleRate != DefaultSessionSampleRate {
		t.Errorf("session.sample_rate = %d, want %d", cfg.Session.SampleRate, DefaultSessionSampleRate)
	}
	if cfg.Probe.SampleRate != DefaultProbeSampleRate {
		t.Errorf("probe.sample_rate = %d, want %d", cfg.Probe.SampleRate, DefaultProbeSampleRate)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
wake:
  phrase: "hey brain"
  typo_field: true
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Segment.MinMs = 800
	cfg.Segment.MaxMs = 600
	cfg.Tools.Servers = []ToolServerConfig{
		{Name: "", Transport: "stdio"},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{
		"server.log_level",
		"wake.phrase is required",
		"segment.max_ms",
		"tools.servers[0].name is required",
		"tools.servers[0].command is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidate_SegmentMaxBoundedByRetention(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Wake.Phrase = "hey brain"
	cfg.Segment.MaxMs = cfg.Segmenter.RetentionMs + 1

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "segment.max_ms") {
		t.Fatalf("err = %v, want a segment.max_ms bound error", err)
	}
}

func TestValidate_ProbeRequirements(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Wake.Phrase = "hey brain"
	cfg.Probe.Provider = "whisper"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "probe.model") {
		t.Fatalf("err = %v, want a probe.model error", err)
	}
}
