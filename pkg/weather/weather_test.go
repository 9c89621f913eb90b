package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	high, err := Static(100).HighTemperature(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 100.0, high)
}

func TestFunc(t *testing.T) {
	boom := errors.New("boom")
	f := Func(func(context.Context, time.Time) (float64, error) { return 0, boom })
	_, err := f.HighTemperature(context.Background(), time.Now())
	assert.ErrorIs(t, err, boom)
}
