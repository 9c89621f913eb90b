package utility

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakguard/peakguard/pkg/types"
)

func summerTariff() *Tariff {
	return &Tariff{
		Seasons: []types.Season{
			{
				Name:   "summer",
				Months: []int{6, 7, 8, 9},
				PeakPeriods: []types.PeakWindow{
					{Start: types.NewTimeOfDay(16, 0), End: types.NewTimeOfDay(19, 0)},
				},
			},
			{
				Name:   "winter",
				Months: []int{11, 12, 1, 2, 3},
				PeakPeriods: []types.PeakWindow{
					{Start: types.NewTimeOfDay(6, 0), End: types.NewTimeOfDay(9, 0)},
					{Start: types.NewTimeOfDay(17, 0), End: types.NewTimeOfDay(21, 0)},
				},
			},
		},
		Holidays: map[string]struct{}{
			"2025-07-04": {},
		},
		PreWindow:  30 * time.Minute,
		StartGrace: 5 * time.Minute,
		Location:   time.UTC,
	}
}

// 2025-07-01 is a Tuesday.
func at(hour, minute, second int) time.Time {
	return time.Date(2025, 7, 1, hour, minute, second, 0, time.UTC)
}

func TestResolvePhase(t *testing.T) {
	tariff := summerTariff()

	tests := []struct {
		name string
		now  time.Time
		want types.Phase
	}{
		{"15:29", at(15, 29, 0), types.PhaseNonPeak},
		{"15:30", at(15, 30, 0), types.PhasePrePeak},
		{"15:59", at(15, 59, 0), types.PhasePrePeak},
		{"16:00", at(16, 0, 0), types.PhasePeakStart},
		{"16:05", at(16, 5, 0), types.PhasePeakStart},
		{"16:06", at(16, 6, 0), types.PhasePeakMonitor},
		{"19:00", at(19, 0, 0), types.PhasePeakMonitor},
		{"19:15", at(19, 15, 0), types.PhasePeakEnd},
		{"19:30", at(19, 30, 0), types.PhasePeakEnd},
		{"19:31", at(19, 31, 0), types.PhaseNonPeak},
		{"seconds past grace", at(16, 5, 1), types.PhasePeakMonitor},
		{"seconds past post window", at(19, 30, 1), types.PhaseNonPeak},
		{"seconds before pre window", at(15, 29, 59), types.PhaseNonPeak},
		{"midnight", at(0, 0, 0), types.PhaseNonPeak},
		{"morning", at(9, 0, 0), types.PhaseNonPeak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePhase(tt.now, tariff)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePhaseOffDays(t *testing.T) {
	tariff := summerTariff()

	t.Run("weekend", func(t *testing.T) {
		// 2025-07-05 is a Saturday, 2025-07-06 a Sunday.
		for _, d := range []int{5, 6} {
			for h := 0; h < 24; h++ {
				now := time.Date(2025, 7, d, h, 0, 0, 0, time.UTC)
				got, err := ResolvePhase(now, tariff)
				require.NoError(t, err)
				assert.Equal(t, types.PhaseNonPeak, got, now.String())
			}
		}
	})

	t.Run("holiday", func(t *testing.T) {
		for _, m := range []int{0, 15, 30, 45} {
			now := time.Date(2025, 7, 4, 16, m, 0, 0, time.UTC)
			got, err := ResolvePhase(now, tariff)
			require.NoError(t, err)
			assert.Equal(t, types.PhaseNonPeak, got)
		}
	})
}

func TestResolvePhaseMultipleWindows(t *testing.T) {
	tariff := summerTariff()
	// 2025-01-07 is a Tuesday.
	day := func(h, m int) time.Time { return time.Date(2025, 1, 7, h, m, 0, 0, time.UTC) }

	cases := map[time.Time]types.Phase{
		day(5, 30):  types.PhasePrePeak,
		day(7, 0):   types.PhasePeakMonitor,
		day(9, 30):  types.PhasePeakEnd,
		day(12, 0):  types.PhaseNonPeak,
		day(16, 45): types.PhasePrePeak,
		day(17, 3):  types.PhasePeakStart,
		day(21, 10): types.PhasePeakEnd,
	}
	for now, want := range cases {
		got, err := ResolvePhase(now, tariff)
		require.NoError(t, err)
		assert.Equal(t, want, got, now.Format(time.Kitchen))
	}
}

func TestResolvePhaseNoSeason(t *testing.T) {
	tariff := summerTariff()
	// April is not claimed by any season; 2025-04-01 is a Tuesday.
	got, err := ResolvePhase(time.Date(2025, 4, 1, 16, 30, 0, 0, time.UTC), tariff)
	assert.Equal(t, types.PhaseNonPeak, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSeason))
}

func TestResolvePhaseFirstSeasonWins(t *testing.T) {
	tariff := summerTariff()
	tariff.Seasons = append([]types.Season{{
		Name:   "july-special",
		Months: []int{7},
		PeakPeriods: []types.PeakWindow{
			{Start: types.NewTimeOfDay(12, 0), End: types.NewTimeOfDay(13, 0)},
		},
	}}, tariff.Seasons...)

	got, err := ResolvePhase(at(12, 30, 0), tariff)
	require.NoError(t, err)
	assert.Equal(t, types.PhasePeakMonitor, got)

	got, err = ResolvePhase(at(17, 0, 0), tariff)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseNonPeak, got)
}

func TestResolvePhaseLocation(t *testing.T) {
	tariff := summerTariff()
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	tariff.Location = chicago

	// 21:00 UTC is 16:00 CDT.
	got, err := ResolvePhase(at(21, 0, 0), tariff)
	require.NoError(t, err)
	assert.Equal(t, types.PhasePeakStart, got)
}

func TestPeakTimeRemaining(t *testing.T) {
	tariff := summerTariff()

	mins, ok := PeakTimeRemaining(at(17, 20, 0), tariff)
	require.True(t, ok)
	assert.Equal(t, 100, mins)

	mins, ok = PeakTimeRemaining(at(18, 59, 30), tariff)
	require.True(t, ok)
	assert.Equal(t, 0, mins)

	mins, ok = PeakTimeRemaining(at(16, 0, 0), tariff)
	require.True(t, ok)
	assert.Equal(t, 180, mins)

	_, ok = PeakTimeRemaining(at(15, 45, 0), tariff)
	assert.False(t, ok)

	_, ok = PeakTimeRemaining(time.Date(2025, 7, 5, 17, 0, 0, 0, time.UTC), tariff)
	assert.False(t, ok)
}

func TestNewTariff(t *testing.T) {
	s, _, err := types.MigrateSettings(types.Settings{
		Timezone: "America/New_York",
		Holidays: []string{"2025-07-04"},
		Seasons:  summerTariff().Seasons,
	}, 0)
	require.NoError(t, err)

	tariff, err := NewTariff(s)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, tariff.PreWindow)
	assert.Equal(t, 5*time.Minute, tariff.StartGrace)
	assert.Equal(t, "America/New_York", tariff.Location.String())
	assert.Contains(t, tariff.Holidays, "2025-07-04")

	s.Holidays = []string{"July 4th"}
	_, err = NewTariff(s)
	assert.Error(t, err)
}
