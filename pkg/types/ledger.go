package types

import (
	"time"

	"github.com/google/uuid"
)

// ActionType names a recorded control action.
type ActionType string

const (
	ActionSetBatteryReserve ActionType = "set_battery_reserve"
	ActionAdjustThermostat  ActionType = "adjust_thermostat"
)

// Reasons attached to recorded actions.
const (
	ReasonNonPeakPeriod       = "non_peak_period"
	ReasonPeakPeriod          = "peak_period"
	ReasonBatteryConservation = "battery_conservation"
	ReasonPrecooling          = "precooling"
)

// ActionRecord is one entry in the day's append-only action log. Only the
// fields relevant to Action are set.
type ActionRecord struct {
	ID     string     `json:"id"`
	Action ActionType `json:"action"`
	Reason string     `json:"reason,omitempty"`

	ThermostatID     string   `json:"thermostat_id,omitempty"`
	PreviousSetpoint *float64 `json:"previous_setpoint,omitempty"`
	NewSetpoint      *float64 `json:"new_setpoint,omitempty"`

	PreviousReserve *float64 `json:"previous_reserve,omitempty"`
	NewReserve      *float64 `json:"new_reserve,omitempty"`
	BatteryLevel    *float64 `json:"battery_level,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ReserveAction builds a set_battery_reserve record.
func ReserveAction(previous, next float64, reason string) ActionRecord {
	return ActionRecord{
		ID:              uuid.NewString(),
		Action:          ActionSetBatteryReserve,
		Reason:          reason,
		PreviousReserve: &previous,
		NewReserve:      &next,
	}
}

// SetpointAction builds an adjust_thermostat record.
func SetpointAction(thermostatID string, previous, next float64, reason string) ActionRecord {
	return ActionRecord{
		ID:               uuid.NewString(),
		Action:           ActionAdjustThermostat,
		Reason:           reason,
		ThermostatID:     thermostatID,
		PreviousSetpoint: &previous,
		NewSetpoint:      &next,
	}
}

// BatterySample is a battery charge reading taken during a peak poll.
type BatterySample struct {
	Timestamp      time.Time `json:"timestamp"`
	BatteryPercent float64   `json:"battery_percent"`
}

// DailyState is the live record for the current day.
type DailyState struct {
	Actions          []ActionRecord  `json:"actions"`
	BatteryRemaining []BatterySample `json:"battery_remaining"`
	Precooling       bool            `json:"precooling"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// NewDailyState returns an empty state stamped with now.
func NewDailyState(now time.Time) DailyState {
	return DailyState{
		Actions:          []ActionRecord{},
		BatteryRemaining: []BatterySample{},
		LastUpdated:      now,
	}
}

// SummaryStats aggregates a day's battery samples. The battery fields are nil
// when no samples were recorded.
type SummaryStats struct {
	MinBatteryPercent *float64 `json:"min_battery_percent"`
	MaxBatteryPercent *float64 `json:"max_battery_percent"`
	AvgBatteryPercent *float64 `json:"avg_battery_percent"`
	TotalMeasurements int      `json:"total_measurements"`
	TotalActions      int      `json:"total_actions"`
}

// Summarize computes the stats for the state.
func (s DailyState) Summarize() SummaryStats {
	stats := SummaryStats{
		TotalMeasurements: len(s.BatteryRemaining),
		TotalActions:      len(s.Actions),
	}
	if len(s.BatteryRemaining) == 0 {
		return stats
	}
	lo, hi, sum := s.BatteryRemaining[0].BatteryPercent, s.BatteryRemaining[0].BatteryPercent, 0.0
	for _, sample := range s.BatteryRemaining {
		lo = min(lo, sample.BatteryPercent)
		hi = max(hi, sample.BatteryPercent)
		sum += sample.BatteryPercent
	}
	avg := sum / float64(len(s.BatteryRemaining))
	stats.MinBatteryPercent = &lo
	stats.MaxBatteryPercent = &hi
	stats.AvgBatteryPercent = &avg
	return stats
}

// DailySummary is the immutable archive of a finished day.
type DailySummary struct {
	DailyState
	Date        string       `json:"date"`
	FinalizedAt time.Time    `json:"finalized_at"`
	Summary     SummaryStats `json:"summary"`
}

// DayReport describes the current day for the inspection API and the daily
// report notification.
type DayReport struct {
	Date                     string         `json:"date"`
	TotalActions             int            `json:"total_actions"`
	TotalBatteryMeasurements int            `json:"total_battery_measurements"`
	PrecoolingActive         bool           `json:"precooling_active"`
	LastUpdated              time.Time      `json:"last_updated"`
	CurrentBatteryPercent    *float64       `json:"current_battery_percent,omitempty"`
	MinBatteryPercent        *float64       `json:"min_battery_percent,omitempty"`
	MaxBatteryPercent        *float64       `json:"max_battery_percent,omitempty"`
	AvgBatteryPercent        *float64       `json:"avg_battery_percent,omitempty"`
	RecentActions            []ActionRecord `json:"recent_actions"`
}
