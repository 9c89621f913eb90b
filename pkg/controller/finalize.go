package controller

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/peakguard/peakguard/pkg/ledger"
	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/notify"
	"github.com/peakguard/peakguard/pkg/types"
)

// Finalizer runs the end of day rollover.
type Finalizer struct {
	ledger           *ledger.Ledger
	notifier         notify.Notifier
	warningThreshold float64
}

// NewFinalizer creates a new Finalizer.
func NewFinalizer(l *ledger.Ledger, n notify.Notifier, settings types.Settings) *Finalizer {
	return &Finalizer{
		ledger:           l,
		notifier:         n,
		warningThreshold: settings.EODBatteryWarningThreshold,
	}
}

func percent(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*p, 'f', 1, 64) + "%"
}

// FinalizeDay warns about a low end of day battery, archives the day and
// sends the daily report. On failure a critical notification is sent and the
// error is returned.
func (f *Finalizer) FinalizeDay(ctx context.Context) (string, error) {
	if level, ok := f.ledger.LatestBatteryLevel(ctx); ok && level <= f.warningThreshold {
		f.notifier.Notify(ctx, notify.SeverityWarning, notify.KindEODBatteryWarning, map[string]string{
			"Battery Level": strconv.FormatFloat(level, 'f', -1, 64) + "%",
			"Threshold":     strconv.FormatFloat(f.warningThreshold, 'f', -1, 64) + "%",
		})
	}

	report := f.ledger.Report(ctx)
	location, err := f.ledger.FinalizeDay(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to finalize day", slog.String("date", report.Date), slog.Any("error", err))
		f.notifier.Notify(ctx, notify.SeverityCritical, notify.KindAPIError, map[string]string{
			"Operation": "daily finalize",
			"Date":      report.Date,
			"Error":     err.Error(),
		})
		return "", err
	}

	f.notifier.Notify(ctx, notify.SeverityInfo, notify.KindDailyReport, map[string]string{
		"Date":                 report.Date,
		"Total Actions":        strconv.Itoa(report.TotalActions),
		"Battery Measurements": strconv.Itoa(report.TotalBatteryMeasurements),
		"Min Battery":          percent(report.MinBatteryPercent),
		"Max Battery":          percent(report.MaxBatteryPercent),
		"Avg Battery":          percent(report.AvgBatteryPercent),
		"Precooling Used":      strconv.FormatBool(report.PrecoolingActive),
		"Archive":              location,
	})
	return location, nil
}
