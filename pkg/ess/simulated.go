package ess

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/peakguard/peakguard/pkg/common"
	"github.com/peakguard/peakguard/pkg/types"
)

const (
	simulatedCapacityKWH = 13.5
	simulatedMaxRateKW   = 5.0
	simulatedStep        = 5 * time.Minute
)

// Simulated is an in-memory energy site for dry runs. Home load follows a
// sine wave, solar a bell curve peaking at 12:30, and the battery covers the
// deficit down to the reserve and charges from the grid below it.
type Simulated struct {
	mu       sync.Mutex
	now      func() time.Time
	location *time.Location

	soc       float64
	reserve   float64
	timestamp time.Time

	batteryKW float64
	solarKW   float64
	homeKW    float64
	gridKW    float64
}

// NewSimulated returns a simulated site at 50% charge with a full reserve.
func NewSimulated(loc *time.Location) *Simulated {
	if loc == nil {
		loc = time.Local
	}
	return &Simulated{
		now:      time.Now,
		location: loc,
		soc:      50,
		reserve:  100,
	}
}

// WithClock replaces the clock the simulation advances to.
func (s *Simulated) WithClock(now func() time.Time) *Simulated {
	s.now = now
	return s
}

// advance steps the simulation up to now in at most 5 minute steps.
func (s *Simulated) advance(now time.Time) {
	now = now.In(s.location)
	if s.timestamp.IsZero() {
		s.timestamp = now
	}

	stepStart := s.timestamp
	for stepStart.Before(now) {
		stepEnd := stepStart.Add(simulatedStep)
		if stepEnd.After(now) {
			stepEnd = now
		}
		durationHours := stepEnd.Sub(stepStart).Hours()
		stepMid := stepStart.Add(stepEnd.Sub(stepStart) / 2).In(s.location)
		hour := float64(stepMid.Hour()) + float64(stepMid.Minute())/60.0

		homeKW := max(1.0, 1.5+0.5*math.Sin(hour*math.Pi))
		solarKW := 0.0
		if hour >= 6 && hour <= 19 {
			solarKW = 3.0 * math.Sin((hour-6)/13*math.Pi)
		}

		spaceKWH := (100.0 - s.soc) / 100.0 * simulatedCapacityKWH
		usableKWH := max(0, s.soc-s.reserve) / 100.0 * simulatedCapacityKWH

		// positive battery is discharging, positive grid is importing
		var batteryKW, gridKW float64
		net := solarKW - homeKW
		if net > 0 {
			charge := min(net, simulatedMaxRateKW, spaceKWH/durationHours)
			batteryKW = -charge
			gridKW = -(net - charge)
		} else {
			discharge := min(-net, simulatedMaxRateKW, usableKWH/durationHours)
			batteryKW = discharge
			gridKW = -net - discharge
		}

		if s.soc < s.reserve {
			charging := -batteryKW
			remainingKWH := spaceKWH - max(0, charging)*durationHours
			extra := min(simulatedMaxRateKW-max(0, charging), remainingKWH/durationHours)
			if extra > 0 {
				batteryKW -= extra
				gridKW += extra
			}
		}

		s.soc += (-batteryKW * durationHours) / simulatedCapacityKWH * 100.0
		s.soc = min(100, max(0, s.soc))

		s.batteryKW = batteryKW
		s.solarKW = solarKW
		s.homeKW = homeKW
		s.gridKW = gridKW
		stepStart = stepEnd
	}
	s.timestamp = now
}

func (s *Simulated) HealthCheck(ctx context.Context) bool {
	return true
}

func (s *Simulated) GetBatteryCharge(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	return s.soc, nil
}

func (s *Simulated) GetReserve(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserve, nil
}

// SetReserve advances the simulation with the old reserve before applying
// the new one.
func (s *Simulated) SetReserve(ctx context.Context, percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: reserve must be between 0 and 100, got %v", common.ErrOutOfRange, percent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	s.reserve = math.Round(percent)
	return nil
}

func (s *Simulated) GetLiveStatus(ctx context.Context) (types.LiveStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.advance(now)
	return types.LiveStatus{
		Timestamp:      now,
		BatteryPercent: s.soc,
		SolarPowerW:    s.solarKW * 1000,
		BatteryPowerW:  s.batteryKW * 1000,
		LoadPowerW:     s.homeKW * 1000,
		GridPowerW:     s.gridKW * 1000,
		GridStatus:     "Active",
		IslandStatus:   "on_grid",
	}, nil
}

var _ System = (*Simulated)(nil)
