package ess

import (
	"context"

	"github.com/peakguard/peakguard/pkg/types"
)

// System defines the interface for interacting with an Energy Storage System
// (like a Tesla Powerwall). Reads are always live.
type System interface {
	// HealthCheck reports whether the backend is reachable and authorized.
	// It never returns an error; failures degrade to false.
	HealthCheck(ctx context.Context) bool

	// GetBatteryCharge returns the current state of charge in percent.
	GetBatteryCharge(ctx context.Context) (float64, error)

	// GetReserve returns the configured backup reserve in percent.
	GetReserve(ctx context.Context) (float64, error)

	// SetReserve sets the backup reserve. percent must be within 0..100.
	SetReserve(ctx context.Context, percent float64) error

	// GetLiveStatus returns the current power flow and grid status.
	GetLiveStatus(ctx context.Context) (types.LiveStatus, error)
}
