package utility

import (
	"fmt"
	"time"

	"github.com/peakguard/peakguard/pkg/types"
)

// ResolvePhase maps now onto the tariff's peak schedule. It never performs
// I/O. When no season claims the month it returns NON_PEAK and an error
// wrapping ErrNoSeason so the caller can log the misconfiguration.
func ResolvePhase(now time.Time, t *Tariff) (types.Phase, error) {
	now = t.local(now)
	if t.IsOffDay(now) {
		return types.PhaseNonPeak, nil
	}

	season, ok := t.SeasonFor(now.Month())
	if !ok {
		return types.PhaseNonPeak, fmt.Errorf("%w: %d", ErrNoSeason, now.Month())
	}

	clock := types.ClockOf(now).Duration()
	for _, w := range season.PeakPeriods {
		start, end := w.Start.Duration(), w.End.Duration()
		switch {
		case clock >= start-t.PreWindow && clock < start:
			return types.PhasePrePeak, nil
		case clock >= start && clock <= end:
			if clock <= start+t.StartGrace {
				return types.PhasePeakStart, nil
			}
			return types.PhasePeakMonitor, nil
		case clock > end && clock <= end+t.PreWindow:
			return types.PhasePeakEnd, nil
		}
	}
	return types.PhaseNonPeak, nil
}

// PeakTimeRemaining returns the whole minutes left in the peak window now
// falls inside. It returns false when now is not inside a window.
func PeakTimeRemaining(now time.Time, t *Tariff) (int, bool) {
	now = t.local(now)
	if t.IsOffDay(now) {
		return 0, false
	}
	season, ok := t.SeasonFor(now.Month())
	if !ok {
		return 0, false
	}
	clock := types.ClockOf(now).Duration()
	for _, w := range season.PeakPeriods {
		if clock >= w.Start.Duration() && clock <= w.End.Duration() {
			return int((w.End.Duration() - clock) / time.Minute), true
		}
	}
	return 0, false
}
