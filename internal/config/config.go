// Package config загружает конфиг бота. Формат — YAML (gopkg.in/yaml.v3),
// JSON-конфиги тоже подходят, так как JSON — подмножество YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGame          = "APBot"
	DefaultItemsHandling = 0b111
	DefaultStateDir      = "state"
)

// Policy — параметры политики решений. Options — непрозрачные настройки
// конкретной игры, ядро их не читает.
type Policy struct {
	Name           string         `yaml:"name"`
	Interval       time.Duration  `yaml:"interval"`
	ChecksPerCycle int            `yaml:"checks_per_cycle"`
	GoalPercent    int            `yaml:"goal_percent"`
	Seed           uint64         `yaml:"seed"`
	Options        map[string]any `yaml:"options,omitempty"`
}

type Config struct {
	SlotName      string   `yaml:"slot_name"`
	ServerAddr    string   `yaml:"server_addr"`
	Password      string   `yaml:"password"`
	Game          string   `yaml:"game"`
	ItemsHandling int      `yaml:"items_handling"`
	Tags          []string `yaml:"tags"`

	StateDir    string `yaml:"state_dir"`
	StateFormat string `yaml:"state_format"`

	LogFile string `yaml:"log_file"`
	Verbose bool   `yaml:"verbose"`

	ExitOnGoal bool          `yaml:"exit_on_goal"`
	GoalGrace  time.Duration `yaml:"goal_grace"`

	Policy Policy `yaml:"policy"`
}

// Default возвращает конфиг со значениями по умолчанию (без slot_name).
func Default() Config {
	return Config{
		Game:          DefaultGame,
		ItemsHandling: DefaultItemsHandling,
		Tags:          []string{"AP", "Bot"},
		StateDir:      DefaultStateDir,
		StateFormat:   "json",
		ExitOnGoal:    true,
		GoalGrace:     3 * time.Second,
		Policy: Policy{
			Name:           "sequential",
			Interval:       5 * time.Second,
			ChecksPerCycle: 1,
			GoalPercent:    100,
		},
	}
}

// Load читает и валидирует файл. Битый файл — фатальная ошибка старта.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse разбирает документ поверх Default(). Неизвестные ключи — ошибка.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет конфиг после применения флагов/env.
func (c *Config) Validate() error {
	var errs []error
	if c.SlotName == "" {
		errs = append(errs, errors.New("slot_name is required"))
	}
	if c.Game == "" {
		errs = append(errs, errors.New("game is required"))
	}
	switch c.StateFormat {
	case "json", "proto":
	default:
		errs = append(errs, fmt.Errorf("state_format %q: want json or proto", c.StateFormat))
	}
	switch c.Policy.Name {
	case "sequential", "random":
	default:
		errs = append(errs, fmt.Errorf("policy.name %q: want sequential or random", c.Policy.Name))
	}
	if c.Policy.Interval <= 0 {
		errs = append(errs, errors.New("policy.interval must be positive"))
	}
	if c.Policy.ChecksPerCycle < 1 {
		errs = append(errs, errors.New("policy.checks_per_cycle must be at least 1"))
	}
	if c.Policy.GoalPercent < 1 || c.Policy.GoalPercent > 100 {
		errs = append(errs, errors.New("policy.goal_percent must be within 1..100"))
	}
	if c.GoalGrace < 0 {
		errs = append(errs, errors.New("goal_grace must not be negative"))
	}
	return errors.Join(errs...)
}
