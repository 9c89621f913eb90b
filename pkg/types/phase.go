package types

import (
	"fmt"
	"time"
)

// Phase is the operational mode derived from the clock and the peak table.
type Phase string

const (
	PhaseNonPeak     Phase = "NON_PEAK"
	PhasePrePeak     Phase = "PRE_PEAK"
	PhasePeakStart   Phase = "PEAK_START"
	PhasePeakMonitor Phase = "PEAK_MONITOR"
	PhasePeakEnd     Phase = "PEAK_END"
)

// IsPeak reports whether the phase is inside a peak window.
func (p Phase) IsPeak() bool {
	return p == PhasePeakStart || p == PhasePeakMonitor
}

// TimeOfDay is an offset from local midnight. Its text form is HH:MM.
type TimeOfDay time.Duration

// NewTimeOfDay returns the TimeOfDay for hour:minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ClockOf returns the time of day of t in t's location, including seconds.
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// ParseTimeOfDay parses an HH:MM string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

// Duration returns the offset since midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t)
}

// On returns the instant on day's date (in day's location) at this time of day.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(time.Duration(t))
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// PeakWindow is one peak-demand period within a day.
type PeakWindow struct {
	Start TimeOfDay `yaml:"start" json:"start"`
	End   TimeOfDay `yaml:"end" json:"end"`
}

func (w PeakWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Season maps a set of months to their peak windows.
type Season struct {
	Name        string       `yaml:"name" json:"name"`
	Months      []int        `yaml:"months" json:"months"`
	PeakPeriods []PeakWindow `yaml:"peak_periods" json:"peak_periods"`
}

// HasMonth reports whether the season claims month m.
func (s Season) HasMonth(m time.Month) bool {
	for _, month := range s.Months {
		if month == int(m) {
			return true
		}
	}
	return false
}
