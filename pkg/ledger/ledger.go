// Package ledger owns the current day's state. Every mutation is a
// load-modify-save cycle against a storage.Database.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/storage"
	"github.com/peakguard/peakguard/pkg/types"
)

// recentActions is how many actions Report includes.
const recentActions = 5

// Ledger is the day-scoped record of actions and battery samples.
type Ledger struct {
	db  storage.Database
	loc *time.Location
	now func() time.Time
}

// New returns a Ledger over db. Dates are computed in loc.
func New(db storage.Database, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		db:  db,
		loc: loc,
		now: time.Now,
	}
}

// WithClock replaces the clock used to stamp records.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Date returns the current local date as YYYY-MM-DD.
func (l *Ledger) Date() string {
	return l.now().In(l.loc).Format(time.DateOnly)
}

// Load returns the live state. A missing or unreadable record yields a fresh
// default state.
func (l *Ledger) Load(ctx context.Context) types.DailyState {
	s, err := l.db.GetDailyState(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrStateNotFound) {
			log.Ctx(ctx).DebugContext(ctx, "no daily state, starting fresh")
		} else {
			log.Ctx(ctx).WarnContext(ctx, "failed to load daily state, using defaults", slog.Any("error", err))
		}
		return types.NewDailyState(l.now())
	}
	if s.Actions == nil {
		s.Actions = []types.ActionRecord{}
	}
	if s.BatteryRemaining == nil {
		s.BatteryRemaining = []types.BatterySample{}
	}
	return s
}

// Save replaces the live state.
func (l *Ledger) Save(ctx context.Context, s types.DailyState) error {
	if err := l.db.SetDailyState(ctx, s); err != nil {
		return fmt.Errorf("failed to save daily state: %w", err)
	}
	return nil
}

func (l *Ledger) update(ctx context.Context, fn func(s *types.DailyState, now time.Time)) error {
	s := l.Load(ctx)
	now := l.now()
	fn(&s, now)
	s.LastUpdated = now
	return l.Save(ctx, s)
}

// RecordAction appends a to the day's actions, stamping it if needed.
func (l *Ledger) RecordAction(ctx context.Context, a types.ActionRecord) error {
	return l.update(ctx, func(s *types.DailyState, now time.Time) {
		if a.Timestamp.IsZero() {
			a.Timestamp = now
		}
		s.Actions = append(s.Actions, a)
	})
}

// RecordBatteryLevel appends a battery sample.
func (l *Ledger) RecordBatteryLevel(ctx context.Context, percent float64) error {
	return l.update(ctx, func(s *types.DailyState, now time.Time) {
		s.BatteryRemaining = append(s.BatteryRemaining, types.BatterySample{
			Timestamp:      now,
			BatteryPercent: percent,
		})
	})
}

// Precooling reports whether precooling already ran today.
func (l *Ledger) Precooling(ctx context.Context) bool {
	return l.Load(ctx).Precooling
}

// SetPrecooling sets the precooling flag.
func (l *Ledger) SetPrecooling(ctx context.Context, active bool) error {
	return l.update(ctx, func(s *types.DailyState, _ time.Time) {
		s.Precooling = active
	})
}

// LatestBatteryLevel returns the most recent battery sample.
func (l *Ledger) LatestBatteryLevel(ctx context.Context) (float64, bool) {
	s := l.Load(ctx)
	if len(s.BatteryRemaining) == 0 {
		return 0, false
	}
	return s.BatteryRemaining[len(s.BatteryRemaining)-1].BatteryPercent, true
}

// Report summarizes the current day.
func (l *Ledger) Report(ctx context.Context) types.DayReport {
	s := l.Load(ctx)
	stats := s.Summarize()
	r := types.DayReport{
		Date:                     l.Date(),
		TotalActions:             stats.TotalActions,
		TotalBatteryMeasurements: stats.TotalMeasurements,
		PrecoolingActive:         s.Precooling,
		LastUpdated:              s.LastUpdated,
		MinBatteryPercent:        stats.MinBatteryPercent,
		MaxBatteryPercent:        stats.MaxBatteryPercent,
		AvgBatteryPercent:        stats.AvgBatteryPercent,
		RecentActions:            s.Actions[max(0, len(s.Actions)-recentActions):],
	}
	if n := len(s.BatteryRemaining); n > 0 {
		current := s.BatteryRemaining[n-1].BatteryPercent
		r.CurrentBatteryPercent = &current
	}
	return r
}

// FinalizeDay archives the live state under the current local date and
// resets it. It returns where the archive was written. If the date was
// already archived the live state is left untouched.
func (l *Ledger) FinalizeDay(ctx context.Context) (string, error) {
	s := l.Load(ctx)
	now := l.now()
	summary := types.DailySummary{
		DailyState:  s,
		Date:        now.In(l.loc).Format(time.DateOnly),
		FinalizedAt: now,
		Summary:     s.Summarize(),
	}
	location, err := l.db.CreateDailySummary(ctx, summary)
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", summary.Date, err)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"archived daily summary",
		slog.String("date", summary.Date),
		slog.String("location", location),
		slog.Int("actions", summary.Summary.TotalActions),
		slog.Int("measurements", summary.Summary.TotalMeasurements),
	)
	if err := l.Save(ctx, types.NewDailyState(now)); err != nil {
		return location, err
	}
	return location, nil
}
