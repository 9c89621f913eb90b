package essmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/peakguard/peakguard/pkg/ess"
	"github.com/peakguard/peakguard/pkg/types"
)

type MockSystem struct {
	mock.Mock
}

var _ ess.System = (*MockSystem)(nil)

func (m *MockSystem) HealthCheck(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockSystem) GetBatteryCharge(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSystem) GetReserve(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSystem) SetReserve(ctx context.Context, percent float64) error {
	args := m.Called(ctx, percent)
	return args.Error(0)
}

func (m *MockSystem) GetLiveStatus(ctx context.Context) (types.LiveStatus, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.LiveStatus), args.Error(1)
	}
	return types.LiveStatus{}, nil
}
