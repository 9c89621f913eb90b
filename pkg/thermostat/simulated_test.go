package thermostat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakguard/peakguard/pkg/common"
)

func TestSimulated(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated()
	assert.True(t, s.HealthCheck(ctx))

	t.Run("Default", func(t *testing.T) {
		sp, err := s.GetCoolSetpoint(ctx, "upstairs")
		require.NoError(t, err)
		assert.Equal(t, float64(simulatedDefaultSetpointF), sp)
	})

	t.Run("Set", func(t *testing.T) {
		ok, err := s.SetCoolSetpoint(ctx, "upstairs", 78)
		require.NoError(t, err)
		assert.True(t, ok)

		r, err := s.GetReading(ctx, "upstairs")
		require.NoError(t, err)
		assert.Equal(t, "upstairs", r.ThermostatID)
		assert.Equal(t, 78.0, r.CoolSetpointF)
		assert.Equal(t, 79.5, r.IndoorTemperatureF)

		// other thermostats are untouched
		sp, err := s.GetCoolSetpoint(ctx, "downstairs")
		require.NoError(t, err)
		assert.Equal(t, float64(simulatedDefaultSetpointF), sp)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		ok, err := s.SetCoolSetpoint(ctx, "upstairs", MaxSetpointF+1)
		assert.ErrorIs(t, err, common.ErrOutOfRange)
		assert.False(t, ok)

		sp, err := s.GetCoolSetpoint(ctx, "upstairs")
		require.NoError(t, err)
		assert.Equal(t, 78.0, sp)
	})
}
