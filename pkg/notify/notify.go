package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/peakguard/peakguard/pkg/log"
)

// Severity of a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification kinds.
const (
	KindBatteryAdjusted   = "battery_adjusted"
	KindPrecoolActivated  = "precool_activated"
	KindEODBatteryWarning = "eod_battery_warning"
	KindAPIError          = "api_error"
	KindDailyReport       = "daily_report"
)

var subjects = map[string]string{
	KindBatteryAdjusted:   "Battery Adjusted",
	KindPrecoolActivated:  "Precooling Activated",
	KindEODBatteryWarning: "End of Day Battery Warning",
	KindAPIError:          "API Error",
	KindDailyReport:       "Daily Report",
}

// Subject returns a human readable subject line for a notification.
func Subject(severity Severity, kind string) string {
	title, ok := subjects[kind]
	if !ok {
		title = "Notification"
	}
	return "[" + strings.ToUpper(string(severity)) + "] PeakGuard: " + title
}

// Notifier delivers best-effort notifications. Notify reports whether the
// notification was delivered and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, kind string, details map[string]string) bool
}

// LogNotifier writes notifications to the context logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, severity Severity, kind string, details map[string]string) bool {
	level := slog.LevelInfo
	switch severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	attrs := make([]any, 0, len(details))
	for k, v := range details {
		attrs = append(attrs, slog.String(k, v))
	}
	log.Ctx(ctx).Log(
		ctx,
		level,
		Subject(severity, kind),
		slog.String("kind", kind),
		slog.Group("details", attrs...),
	)
	return true
}

// Multi sends to every notifier and reports whether all of them delivered.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, severity Severity, kind string, details map[string]string) bool {
	ok := true
	for _, n := range m {
		if !n.Notify(ctx, severity, kind, details) {
			ok = false
		}
	}
	return ok
}
