package utility

import (
	"errors"
	"fmt"
	"time"

	"github.com/peakguard/peakguard/pkg/types"
)

// ErrNoSeason is returned alongside NON_PEAK when no season claims the month
// being resolved.
var ErrNoSeason = errors.New("no season configured for month")

// Tariff is the peak-demand schedule the phase resolver evaluates.
type Tariff struct {
	// Seasons are evaluated in order; the first one claiming a month wins.
	Seasons    []types.Season
	Holidays   map[string]struct{}
	PreWindow  time.Duration
	StartGrace time.Duration
	// Location the windows are expressed in. Nil uses the time's own location.
	Location *time.Location
}

// NewTariff builds a Tariff from validated settings.
func NewTariff(s types.Settings) (*Tariff, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	holidays := make(map[string]struct{}, len(s.Holidays))
	for _, h := range s.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		holidays[h] = struct{}{}
	}
	return &Tariff{
		Seasons:    s.Seasons,
		Holidays:   holidays,
		PreWindow:  s.PreWindow(),
		StartGrace: s.StartGrace(),
		Location:   loc,
	}, nil
}

func (t *Tariff) local(now time.Time) time.Time {
	if t.Location != nil {
		return now.In(t.Location)
	}
	return now
}

// IsOffDay reports whether now falls on a weekend or a holiday.
func (t *Tariff) IsOffDay(now time.Time) bool {
	now = t.local(now)
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	_, ok := t.Holidays[now.Format(time.DateOnly)]
	return ok
}

// SeasonFor returns the first season claiming month m.
func (t *Tariff) SeasonFor(m time.Month) (types.Season, bool) {
	for _, s := range t.Seasons {
		if s.HasMonth(m) {
			return s, true
		}
	}
	return types.Season{}, false
}
