package utility

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/peakguard/peakguard/pkg/types"
)

const day = 24 * time.Hour

// ValidateSeasons rejects peak tables the phase resolver cannot evaluate
// unambiguously: unknown or doubly-claimed months, empty or inverted windows,
// pre/post windows that cross midnight, windows shorter than pre+grace and
// windows whose ranges (including their pre and post windows) overlap.
func ValidateSeasons(seasons []types.Season, pre, grace time.Duration) error {
	if len(seasons) == 0 {
		return errors.New("at least one season is required")
	}
	if pre < 0 || grace < 0 {
		return fmt.Errorf("pre-window (%s) and start grace (%s) must not be negative", pre, grace)
	}

	claimed := make(map[int]string, 12)
	for i, s := range seasons {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if len(s.Months) == 0 {
			return fmt.Errorf("season %s: no months", name)
		}
		for _, m := range s.Months {
			if m < 1 || m > 12 {
				return fmt.Errorf("season %s: invalid month %d", name, m)
			}
			if other, ok := claimed[m]; ok {
				return fmt.Errorf("season %s: month %d already claimed by season %s", name, m, other)
			}
			claimed[m] = name
		}

		type span struct {
			from, to time.Duration
			w        types.PeakWindow
		}
		spans := make([]span, 0, len(s.PeakPeriods))
		for _, w := range s.PeakPeriods {
			start, end := w.Start.Duration(), w.End.Duration()
			if start < 0 || end >= day {
				return fmt.Errorf("season %s: window %s is outside the day", name, w)
			}
			if end <= start {
				return fmt.Errorf("season %s: window %s ends before it starts", name, w)
			}
			if start-pre < 0 {
				return fmt.Errorf("season %s: pre-peak window of %s crosses midnight", name, w)
			}
			if end+pre >= day {
				return fmt.Errorf("season %s: post-peak window of %s crosses midnight", name, w)
			}
			if end-start < pre+grace {
				return fmt.Errorf("season %s: window %s is shorter than pre-window plus start grace (%s)", name, w, pre+grace)
			}
			spans = append(spans, span{from: start - pre, to: end + pre, w: w})
		}
		slices.SortFunc(spans, func(a, b span) int {
			return cmp.Compare(a.from, b.from)
		})
		for j := 1; j < len(spans); j++ {
			if spans[j].from <= spans[j-1].to {
				return fmt.Errorf("season %s: windows %s and %s overlap", name, spans[j-1].w, spans[j].w)
			}
		}
	}
	return nil
}
