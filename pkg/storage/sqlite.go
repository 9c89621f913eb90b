package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/peakguard/peakguard/pkg/types"
)

// SQLiteProvider keeps the live state in a single row and one row per
// archived day.
type SQLiteProvider struct {
	path string
	db   *sql.DB
}

func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "peakguard.db", "Path of the SQLite database (storage-provider=sqlite)")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// NewSQLiteProvider opens (creating if needed) the database at path.
func NewSQLiteProvider(ctx context.Context, path string) (*SQLiteProvider, error) {
	s := &SQLiteProvider{path: path}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Init opens the database and creates the schema.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	schema := `
		CREATE TABLE IF NOT EXISTS daily_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS daily_summary (
			date TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			finalized_at TEXT NOT NULL
		);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	s.db = db
	return nil
}

func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteProvider) GetDailyState(ctx context.Context) (types.DailyState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM daily_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DailyState{}, ErrStateNotFound
	}
	if err != nil {
		return types.DailyState{}, fmt.Errorf("failed to query daily state: %w", err)
	}
	var state types.DailyState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return types.DailyState{}, fmt.Errorf("failed to unmarshal daily state: %w", err)
	}
	return state, nil
}

func (s *SQLiteProvider) SetDailyState(ctx context.Context, state types.DailyState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal daily state: %w", err)
	}
	query := `
		INSERT INTO daily_state (id, json, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			json = excluded.json,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, string(b), time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save daily state: %w", err)
	}
	return nil
}

func (s *SQLiteProvider) CreateDailySummary(ctx context.Context, summary types.DailySummary) (string, error) {
	if !validDate(summary.Date) {
		return "", fmt.Errorf("invalid summary date %q", summary.Date)
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO daily_summary (date, json, finalized_at) VALUES (?, ?, ?) ON CONFLICT(date) DO NOTHING`,
		summary.Date, string(b), summary.FinalizedAt.Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to insert summary: %w", err)
	}
	location := fmt.Sprintf("sqlite://%s/daily_summary/%s", s.path, summary.Date)
	if n == 0 {
		return "", fmt.Errorf("%w: %s", ErrSummaryExists, location)
	}
	return location, nil
}

func (s *SQLiteProvider) GetDailySummary(ctx context.Context, date string) (types.DailySummary, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM daily_summary WHERE date = ?`, date).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DailySummary{}, ErrSummaryNotFound
	}
	if err != nil {
		return types.DailySummary{}, fmt.Errorf("failed to query summary: %w", err)
	}
	var summary types.DailySummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return types.DailySummary{}, fmt.Errorf("failed to unmarshal summary %s: %w", date, err)
	}
	return summary, nil
}

func (s *SQLiteProvider) ListDailySummaryDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM daily_summary ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan summary date: %w", err)
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}
