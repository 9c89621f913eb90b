package weather

import (
	"context"
	"time"
)

// Forecaster returns the forecast high temperature in °F for the day of t.
type Forecaster interface {
	HighTemperature(ctx context.Context, t time.Time) (float64, error)
}

// Static always forecasts the same high. It stands in until a real forecast
// source is wired.
type Static float64

func (s Static) HighTemperature(context.Context, time.Time) (float64, error) {
	return float64(s), nil
}

// Func adapts a function to Forecaster.
type Func func(ctx context.Context, t time.Time) (float64, error)

func (f Func) HighTemperature(ctx context.Context, t time.Time) (float64, error) {
	return f(ctx, t)
}
