package notifymock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/peakguard/peakguard/pkg/notify"
)

type MockNotifier struct {
	mock.Mock
}

var _ notify.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, severity notify.Severity, kind string, details map[string]string) bool {
	args := m.Called(ctx, severity, kind, details)
	return args.Bool(0)
}
