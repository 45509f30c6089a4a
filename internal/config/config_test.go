package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseJSONConfig(t *testing.T) {
	cfg, err := Parse([]byte(`{"slot_name": "Bot1", "policy": {"checks_per_cycle": 2}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.SlotName != "Bot1" || cfg.Policy.ChecksPerCycle != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	// значения по умолчанию сохраняются
	if cfg.Game != DefaultGame || cfg.Policy.Interval != 5*time.Second || cfg.Policy.GoalPercent != 100 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseYAMLConfig(t *testing.T) {
	doc := `
slot_name: Bot2
server_addr: archipelago.gg:38281
state_format: proto
exit_on_goal: false
goal_grace: 1500ms
policy:
  name: random
  interval: 250ms
  seed: 42
  options:
    speed: fast
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Policy.Interval != 250*time.Millisecond || cfg.GoalGrace != 1500*time.Millisecond {
		t.Fatalf("durations: interval=%v grace=%v", cfg.Policy.Interval, cfg.GoalGrace)
	}
	if cfg.Policy.Name != "random" || cfg.Policy.Seed != 42 || cfg.Policy.Options["speed"] != "fast" {
		t.Fatalf("policy = %+v", cfg.Policy)
	}
	if cfg.ExitOnGoal {
		t.Fatalf("exit_on_goal override ignored")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseRejectsUnknownAndMalformed(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key": "slot_name: a\nslotname: b\n",
		"malformed":   "{slot_name: [",
		"wrong type":  "policy: 12\n",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing slot", func(c *Config) { c.SlotName = "" }, "slot_name"},
		{"bad format", func(c *Config) { c.StateFormat = "xml" }, "state_format"},
		{"bad policy", func(c *Config) { c.Policy.Name = "greedy" }, "policy.name"},
		{"zero interval", func(c *Config) { c.Policy.Interval = 0 }, "interval"},
		{"zero checks", func(c *Config) { c.Policy.ChecksPerCycle = 0 }, "checks_per_cycle"},
		{"goal percent", func(c *Config) { c.Policy.GoalPercent = 101 }, "goal_percent"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.SlotName = "Bot"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadEmptyFileFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("empty config should miss slot_name")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("absent file should fail")
	}
}
