package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/peakguard/peakguard/pkg/storage"
	"github.com/peakguard/peakguard/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetDailyState(ctx context.Context) (types.DailyState, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.DailyState), args.Error(1)
}

func (m *MockDatabase) SetDailyState(ctx context.Context, state types.DailyState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockDatabase) CreateDailySummary(ctx context.Context, summary types.DailySummary) (string, error) {
	args := m.Called(ctx, summary)
	return args.String(0), args.Error(1)
}

func (m *MockDatabase) GetDailySummary(ctx context.Context, date string) (types.DailySummary, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(types.DailySummary), args.Error(1)
}

func (m *MockDatabase) ListDailySummaryDates(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
