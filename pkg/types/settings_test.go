package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("v1: initial defaults", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 2.0, s.ThermostatIncrementF)
		assert.Equal(t, 2.0, s.PrecoolAdjustmentF)
		assert.Equal(t, 95.0, s.PrecoolThresholdF)
		assert.Equal(t, 20.0, s.EODBatteryWarningThreshold)
		assert.Equal(t, CurrentSettingsVersion, s.Version)
	})

	t.Run("v1 to v2: window defaults", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{ThermostatIncrementF: 3}, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 3.0, s.ThermostatIncrementF)
		assert.Equal(t, 30*time.Minute, s.PreWindow())
		assert.Equal(t, 5*time.Minute, s.StartGrace())
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		in := Settings{
			PeakPreWindowMinutes:  45,
			PeakStartGraceMinutes: 10,
			ForecastHighF:         88,
		}
		s, changed, err := MigrateSettings(in, 1)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, 45, s.PeakPreWindowMinutes)
		assert.Equal(t, 10, s.PeakStartGraceMinutes)
		assert.Equal(t, 88.0, s.ForecastHighF)
	})

	t.Run("current version is untouched", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, Settings{}, s)
	})
}

func TestSettingsLocation(t *testing.T) {
	loc, err := Settings{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = Settings{Timezone: "America/Phoenix"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Phoenix", loc.String())

	_, err = Settings{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}

func TestDefaultSettingsMatchMigration(t *testing.T) {
	migrated, _, err := MigrateSettings(Settings{}, 0)
	require.NoError(t, err)

	d := DefaultSettings()
	assert.Zero(t, d.Version)
	d.Version = CurrentSettingsVersion
	assert.Equal(t, migrated, d)
}
