// Package config loads the server tunables from vidadoble.yml.
// Every knob has a default so the server boots with no file present.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config models vidadoble.yml.
type Config struct {
	Server struct {
		Addr   string `yaml:"addr"`
		DBPath string `yaml:"db_path"`
	} `yaml:"server"`

	Tick struct {
		RateSeconds        int `yaml:"rate_seconds"`          // Real seconds per tick
		GameMinutesPerTick int `yaml:"game_minutes_per_tick"` // In-game minutes per tick
	} `yaml:"tick"`

	Detection struct {
		PatrolIntervalHours  float64 `yaml:"patrol_interval_hours"`
		DefaultVisualProfile float64 `yaml:"default_visual_profile"`
	} `yaml:"detection"`

	Heat struct {
		DecayPerHour        float64 `yaml:"decay_per_hour"`
		AuditWindowHours    float64 `yaml:"audit_window_hours"`
		AuditFreezeFraction float64 `yaml:"audit_freeze_fraction"`
		AuditFineRate       float64 `yaml:"audit_fine_rate"`
	} `yaml:"heat"`

	Activity struct {
		DetectionPenalty float64 `yaml:"detection_penalty"`
		SampleWeight     float64 `yaml:"sample_weight"`
	} `yaml:"activity"`
}

// Default returns the shipped tunables.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.DBPath = "vidadoble.db"
	cfg.Tick.RateSeconds = 1
	cfg.Tick.GameMinutesPerTick = 2
	cfg.Detection.PatrolIntervalHours = 1.0
	cfg.Detection.DefaultVisualProfile = 0.5
	cfg.Heat.DecayPerHour = 1.0 / 24.0
	cfg.Heat.AuditWindowHours = 72
	cfg.Heat.AuditFreezeFraction = 0.5
	cfg.Heat.AuditFineRate = 0.25
	cfg.Activity.DetectionPenalty = 0.2
	cfg.Activity.SampleWeight = 0.1
	return cfg
}

// Load reads config from path, falling back to defaults when the file
// does not exist. A malformed file is an error, not a silent fallback.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
