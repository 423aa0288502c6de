// Package config loads paramux tool settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

type Config struct {
	Budget          value.ChannelBudget   `koanf:"budget"`
	Schedule        ScheduleConfig        `koanf:"schedule"`
	ChangeDetection ChangeDetectionConfig `koanf:"change_detection"`
	Log             LogConfig             `koanf:"log"`
}

type ScheduleConfig struct {
	SlotCount       int           `koanf:"slot_count"`
	StepDelay       time.Duration `koanf:"step_delay"`
	UnlockSlotCount bool          `koanf:"unlock_slot_count"`
	SignedFloats    bool          `koanf:"signed_floats"`
}

type ChangeDetectionConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Sensitivity float64 `koanf:"sensitivity"`
	Scope       string  `koanf:"scope"`
	Smoothing   float64 `koanf:"smoothing"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	cd := schedule.DefaultChangeDetection()
	return Config{
		Budget: value.DefaultBudget(),
		Schedule: ScheduleConfig{
			SlotCount: schedule.DefaultSlotCount,
			StepDelay: schedule.DefaultStepDelay,
		},
		ChangeDetection: ChangeDetectionConfig{
			Sensitivity: cd.Sensitivity,
			Scope:       cd.Scope.String(),
			Smoothing:   cd.Smoothing,
		},
		Log: LogConfig{Level: "warn"},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Budget.Validate(); err != nil {
		return err
	}
	if err := schedule.CheckSlotCount(c.Schedule.SlotCount, c.Schedule.UnlockSlotCount); err != nil {
		return fmt.Errorf("schedule.slot_count: %w", err)
	}
	if c.Schedule.StepDelay <= 0 {
		return fmt.Errorf("schedule.step_delay must be positive, got %s", c.Schedule.StepDelay)
	}
	if c.ChangeDetection.Sensitivity <= 0 {
		return fmt.Errorf("change_detection.sensitivity must be positive, got %v", c.ChangeDetection.Sensitivity)
	}
	if s := c.ChangeDetection.Smoothing; s <= 0 || s > 1 {
		return fmt.Errorf("change_detection.smoothing must be in (0, 1], got %v", s)
	}
	if _, err := schedule.ParseScope(c.ChangeDetection.Scope); err != nil {
		return fmt.Errorf("change_detection.scope: %w", err)
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		return fmt.Errorf("log.level %q is not a known level", c.Log.Level)
	}
	return nil
}

// CompileOptions maps the schedule section onto compiler options.
func (c *Config) CompileOptions(logger hclog.Logger) schedule.Options {
	opts := schedule.DefaultOptions()
	opts.StepDelay = c.Schedule.StepDelay
	opts.SignedFloats = c.Schedule.SignedFloats
	opts.Logger = logger
	return opts
}

// ChangeDetectionOptions is nil when change detection is disabled.
func (c *Config) ChangeDetectionOptions() (*schedule.ChangeDetectionOptions, error) {
	if !c.ChangeDetection.Enabled {
		return nil, nil
	}
	scope, err := schedule.ParseScope(c.ChangeDetection.Scope)
	if err != nil {
		return nil, err
	}
	return &schedule.ChangeDetectionOptions{
		Sensitivity: c.ChangeDetection.Sensitivity,
		Smoothing:   c.ChangeDetection.Smoothing,
		Scope:       scope,
	}, nil
}

// sections are the top-level keys; env names are split on the first
// matching section so keys like change_detection keep their underscore.
var sections = []string{"budget", "schedule", "change_detection", "log"}

func envKey(name string) string {
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for _, s := range sections {
		if rest, ok := strings.CutPrefix(lower, s+"_"); ok {
			return s + "." + rest
		}
	}
	return lower
}
