package thermostat

import (
	"context"

	"github.com/peakguard/peakguard/pkg/types"
)

// Safe client-side bounds for a cool setpoint in °F.
const (
	MinSetpointF = 60
	MaxSetpointF = 90
)

// System defines the interface for controlling a set of thermostats.
type System interface {
	// HealthCheck reports whether the backend session is usable, re-establishing
	// it if needed. It never returns an error; failures degrade to false.
	HealthCheck(ctx context.Context) bool

	// GetCoolSetpoint returns the live cool setpoint of a thermostat.
	GetCoolSetpoint(ctx context.Context, thermostatID string) (float64, error)

	// SetCoolSetpoint writes a cool setpoint and re-reads it. It returns false
	// with a nil error when the write was accepted but the read back value
	// differs.
	SetCoolSetpoint(ctx context.Context, thermostatID string, temperature float64) (bool, error)

	// GetReading returns the setpoint and the displayed indoor temperature.
	GetReading(ctx context.Context, thermostatID string) (types.ThermostatReading, error)
}
