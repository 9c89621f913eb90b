package thermostat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/peakguard/peakguard/pkg/common"
	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/types"
)

const (
	simulatedDefaultSetpointF = 74
	simulatedIndoorOffsetF    = 1.5
)

// Simulated keeps thermostat setpoints in memory. Unknown thermostats start at
// 74°F and the indoor temperature trails the setpoint by 1.5°F.
type Simulated struct {
	mu        sync.Mutex
	setpoints map[string]float64
}

// NewSimulated returns an empty set of simulated thermostats.
func NewSimulated() *Simulated {
	return &Simulated{
		setpoints: make(map[string]float64),
	}
}

// HealthCheck always succeeds.
func (s *Simulated) HealthCheck(ctx context.Context) bool {
	return true
}

func (s *Simulated) setpoint(thermostatID string) float64 {
	sp, ok := s.setpoints[thermostatID]
	if !ok {
		sp = simulatedDefaultSetpointF
		s.setpoints[thermostatID] = sp
	}
	return sp
}

// GetCoolSetpoint returns the stored setpoint.
func (s *Simulated) GetCoolSetpoint(ctx context.Context, thermostatID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setpoint(thermostatID), nil
}

// SetCoolSetpoint stores the setpoint. Writes always verify.
func (s *Simulated) SetCoolSetpoint(ctx context.Context, thermostatID string, temperature float64) (bool, error) {
	if temperature < MinSetpointF || temperature > MaxSetpointF {
		return false, fmt.Errorf("%w: setpoint must be between %d and %d, got %v", common.ErrOutOfRange, MinSetpointF, MaxSetpointF, temperature)
	}
	s.mu.Lock()
	s.setpoints[thermostatID] = temperature
	s.mu.Unlock()
	log.Ctx(ctx).InfoContext(ctx, "set simulated cool setpoint", slog.String("thermostatID", thermostatID), slog.Float64("setpoint", temperature))
	return true, nil
}

// GetReading returns the stored setpoint and a derived indoor temperature.
func (s *Simulated) GetReading(ctx context.Context, thermostatID string) (types.ThermostatReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.setpoint(thermostatID)
	return types.ThermostatReading{
		ThermostatID:       thermostatID,
		CoolSetpointF:      sp,
		IndoorTemperatureF: sp + simulatedIndoorOffsetF,
	}, nil
}

var _ System = (*Simulated)(nil)
