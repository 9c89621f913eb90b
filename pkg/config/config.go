// Package config loads the control parameters from a YAML settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/levenlabs/go-lflag"
	"gopkg.in/yaml.v3"

	"github.com/peakguard/peakguard/pkg/types"
	"github.com/peakguard/peakguard/pkg/utility"
)

// Configured registers the settings-file flag and returns the settings loaded
// from it once flags are parsed.
func Configured() *types.Settings {
	path := lflag.String("settings-file", "config/settings.yaml", "Path of the YAML settings file")

	s := new(types.Settings)

	lflag.Do(func() {
		loaded, err := Load(*path)
		if err != nil {
			panic(fmt.Sprintf("failed to load settings: %v", err))
		}
		*s = loaded
	})

	return s
}

// Load reads, defaults and validates the settings file at path.
func Load(path string) (types.Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Settings{}, fmt.Errorf("reading settings file %s: %w", path, err)
	}
	s, err := Parse(b)
	if err != nil {
		return types.Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes settings over the defaults, migrates the file's version and
// validates the result. Keys missing from the file keep their default
// whatever version the file declares. Unknown keys are rejected.
func Parse(b []byte) (types.Settings, error) {
	s := types.DefaultSettings()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return types.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}

	s, _, err := types.MigrateSettings(s, s.Version)
	if err != nil {
		return types.Settings{}, err
	}

	if err := Validate(s); err != nil {
		return types.Settings{}, fmt.Errorf("validating settings: %w", err)
	}
	return s, nil
}

// Validate checks settings that the controller relies on.
func Validate(s types.Settings) error {
	if _, err := s.Location(); err != nil {
		return err
	}
	if s.PeakPreWindowMinutes <= 0 {
		return fmt.Errorf("peak_pre_window_minutes must be positive, got %d", s.PeakPreWindowMinutes)
	}
	if err := utility.ValidateSeasons(s.Seasons, s.PreWindow(), s.StartGrace()); err != nil {
		return err
	}
	if _, err := utility.NewTariff(s); err != nil {
		return err
	}
	if len(s.ThermostatIDs) == 0 {
		return errors.New("at least one thermostat id is required")
	}
	seen := make(map[string]bool, len(s.ThermostatIDs))
	for _, id := range s.ThermostatIDs {
		if id == "" {
			return errors.New("thermostat ids must not be empty")
		}
		if seen[id] {
			return fmt.Errorf("thermostat id %s listed twice", id)
		}
		seen[id] = true
	}
	if s.ThermostatIncrementF <= 0 {
		return fmt.Errorf("thermostat_increment_f must be positive, got %v", s.ThermostatIncrementF)
	}
	if s.PrecoolAdjustmentF <= 0 {
		return fmt.Errorf("precool_adjustment_f must be positive, got %v", s.PrecoolAdjustmentF)
	}
	for i, th := range s.BatteryThresholds {
		if th.TimeRemainingMinutes < 0 {
			return fmt.Errorf("battery_thresholds[%d]: time_remaining_minutes must not be negative", i)
		}
		if th.LevelPercent < 0 || th.LevelPercent > 100 {
			return fmt.Errorf("battery_thresholds[%d]: level_percent must be within 0..100", i)
		}
	}
	if s.EODBatteryWarningThreshold < 0 || s.EODBatteryWarningThreshold > 100 {
		return fmt.Errorf("eod_battery_warning_threshold must be within 0..100")
	}
	return nil
}
