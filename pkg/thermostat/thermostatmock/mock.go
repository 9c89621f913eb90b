package thermostatmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/peakguard/peakguard/pkg/thermostat"
	"github.com/peakguard/peakguard/pkg/types"
)

type MockSystem struct {
	mock.Mock
}

var _ thermostat.System = (*MockSystem)(nil)

func (m *MockSystem) HealthCheck(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockSystem) GetCoolSetpoint(ctx context.Context, thermostatID string) (float64, error) {
	args := m.Called(ctx, thermostatID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSystem) SetCoolSetpoint(ctx context.Context, thermostatID string, temperature float64) (bool, error) {
	args := m.Called(ctx, thermostatID, temperature)
	return args.Bool(0), args.Error(1)
}

func (m *MockSystem) GetReading(ctx context.Context, thermostatID string) (types.ThermostatReading, error) {
	args := m.Called(ctx, thermostatID)
	if len(args) > 0 {
		return args.Get(0).(types.ThermostatReading), args.Error(1)
	}
	return types.ThermostatReading{}, nil
}
