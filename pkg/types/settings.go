package types

import (
	"fmt"
	"time"
)

// CurrentSettingsVersion is the current version of the settings file.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

// BatteryThreshold flags the battery as low when at most TimeRemainingMinutes
// are left in the peak window and the charge is at or below LevelPercent.
type BatteryThreshold struct {
	TimeRemainingMinutes int     `yaml:"time_remaining_minutes" json:"time_remaining_minutes"`
	LevelPercent         float64 `yaml:"level_percent" json:"level_percent"`
}

// Settings are the control parameters read from the settings file.
type Settings struct {
	Version int `yaml:"version" json:"version"`

	// IANA zone the peak table is expressed in. Empty means the process zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Ordered; the first season claiming a month wins.
	Seasons []Season `yaml:"seasons" json:"seasons"`
	// ISO dates (YYYY-MM-DD) treated like weekends.
	Holidays []string `yaml:"holidays" json:"holidays"`

	PeakPreWindowMinutes  int `yaml:"peak_pre_window_minutes" json:"peak_pre_window_minutes"`
	PeakStartGraceMinutes int `yaml:"peak_start_grace_minutes" json:"peak_start_grace_minutes"`

	ThermostatIDs        []string           `yaml:"thermostat_ids" json:"thermostat_ids"`
	ThermostatIncrementF float64            `yaml:"thermostat_increment_f" json:"thermostat_increment_f"`
	BatteryThresholds    []BatteryThreshold `yaml:"battery_thresholds" json:"battery_thresholds"`

	PrecoolThresholdF  float64 `yaml:"precool_threshold_f" json:"precool_threshold_f"`
	PrecoolAdjustmentF float64 `yaml:"precool_adjustment_f" json:"precool_adjustment_f"`
	// Forecast high used by the static forecaster.
	ForecastHighF float64 `yaml:"forecast_high_f" json:"forecast_high_f"`

	EODBatteryWarningThreshold float64 `yaml:"eod_battery_warning_threshold" json:"eod_battery_warning_threshold"`
}

// PreWindow returns the pre-peak (and post-peak) window length.
func (s Settings) PreWindow() time.Duration {
	return time.Duration(s.PeakPreWindowMinutes) * time.Minute
}

// StartGrace returns how long after a window starts the phase stays PEAK_START.
func (s Settings) StartGrace() time.Duration {
	return time.Duration(s.PeakStartGraceMinutes) * time.Minute
}

// Location loads the configured timezone.
func (s Settings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %s: %w", s.Timezone, err)
	}
	return loc, nil
}

// DefaultSettings returns the values used for keys missing from the settings
// file. Version is left at zero so MigrateSettings still runs.
func DefaultSettings() Settings {
	return Settings{
		PeakPreWindowMinutes:       30,
		PeakStartGraceMinutes:      5,
		ThermostatIncrementF:       2,
		PrecoolThresholdF:          95,
		PrecoolAdjustmentF:         2,
		ForecastHighF:              100,
		EODBatteryWarningThreshold: 20,
	}
}

// MigrateSettings fills in defaults for every version newer than
// currentVersion. It returns the migrated settings, whether anything changed,
// and an error for an unknown version.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial thermostat and battery parameters
			if s.ThermostatIncrementF == 0 {
				s.ThermostatIncrementF = 2
				migrated = true
			}
			if s.PrecoolAdjustmentF == 0 {
				s.PrecoolAdjustmentF = 2
				migrated = true
			}
			if s.PrecoolThresholdF == 0 {
				s.PrecoolThresholdF = 95
				migrated = true
			}
			if s.EODBatteryWarningThreshold == 0 {
				s.EODBatteryWarningThreshold = 20
				migrated = true
			}
		case 2:
			// version 2: configurable pre-window and start grace
			if s.PeakPreWindowMinutes == 0 {
				s.PeakPreWindowMinutes = 30
				migrated = true
			}
			if s.PeakStartGraceMinutes == 0 {
				s.PeakStartGraceMinutes = 5
				migrated = true
			}
		case 3:
			// version 3: static forecast value
			if s.ForecastHighF == 0 {
				s.ForecastHighF = 100
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}
	s.Version = CurrentSettingsVersion

	return s, migrated, nil
}
