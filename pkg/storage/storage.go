package storage

import (
	"context"
	"errors"
	"time"

	"github.com/peakguard/peakguard/pkg/types"
)

var (
	ErrStateNotFound   = errors.New("daily state not found")
	ErrSummaryNotFound = errors.New("daily summary not found")
	ErrSummaryExists   = errors.New("daily summary already exists")
)

// Database persists the live daily state and the per-day archives.
type Database interface {
	// GetDailyState returns the live record or ErrStateNotFound.
	GetDailyState(ctx context.Context) (types.DailyState, error)
	// SetDailyState replaces the live record atomically.
	SetDailyState(ctx context.Context, state types.DailyState) error

	// CreateDailySummary writes the archive for summary.Date and returns where
	// it was stored. It fails with ErrSummaryExists if the date is archived.
	CreateDailySummary(ctx context.Context, summary types.DailySummary) (string, error)
	// GetDailySummary returns the archive for date or ErrSummaryNotFound.
	GetDailySummary(ctx context.Context, date string) (types.DailySummary, error)
	// ListDailySummaryDates returns archived dates in ascending order.
	ListDailySummaryDates(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}

// validDate reports whether date is an ISO (YYYY-MM-DD) date.
func validDate(date string) bool {
	_, err := time.Parse(time.DateOnly, date)
	return err == nil
}
