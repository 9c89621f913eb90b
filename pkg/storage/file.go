package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/levenlabs/go-lflag"

	"github.com/peakguard/peakguard/pkg/common"
	"github.com/peakguard/peakguard/pkg/types"
)

// FileProvider keeps the live state in one JSON file and writes one
// <date>.json archive per day. The state file is usually on a ramdisk and
// the archive directory on durable storage.
type FileProvider struct {
	statePath  string
	archiveDir string
}

func configuredFile() *FileProvider {
	statePath := lflag.String("state-file", "/tmp/peakguard/daily_state.json", "Path of the live daily state file")
	archiveDir := lflag.String("archive-dir", "metrics", "Directory daily summaries are archived to")

	f := &FileProvider{}

	lflag.Do(func() {
		f.statePath = *statePath
		f.archiveDir = *archiveDir
	})

	return f
}

// NewFileProvider returns an initialized FileProvider.
func NewFileProvider(statePath, archiveDir string) (*FileProvider, error) {
	f := &FileProvider{statePath: statePath, archiveDir: archiveDir}
	if err := f.Init(); err != nil {
		return nil, err
	}
	return f, nil
}

// Init creates the state and archive directories.
func (f *FileProvider) Init() error {
	if f.statePath == "" || f.archiveDir == "" {
		return errors.New("state file and archive dir are required")
	}
	if err := os.MkdirAll(filepath.Dir(f.statePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := os.MkdirAll(f.archiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}
	return nil
}

func (f *FileProvider) Close() error {
	return nil
}

// GetDailyState reads the live state file.
func (f *FileProvider) GetDailyState(ctx context.Context) (types.DailyState, error) {
	b, err := os.ReadFile(f.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.DailyState{}, ErrStateNotFound
		}
		return types.DailyState{}, fmt.Errorf("failed to read state file: %w", err)
	}
	var s types.DailyState
	if err := json.Unmarshal(b, &s); err != nil {
		return types.DailyState{}, fmt.Errorf("failed to unmarshal state file: %w", err)
	}
	return s, nil
}

// SetDailyState replaces the state file with a temp file rename.
func (f *FileProvider) SetDailyState(ctx context.Context, state types.DailyState) error {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := common.WriteFileAtomic(f.statePath, b, 0o644); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (f *FileProvider) summaryPath(date string) string {
	return filepath.Join(f.archiveDir, date+".json")
}

// CreateDailySummary writes <archive-dir>/<date>.json, refusing to replace an
// existing archive.
func (f *FileProvider) CreateDailySummary(ctx context.Context, summary types.DailySummary) (string, error) {
	if !validDate(summary.Date) {
		return "", fmt.Errorf("invalid summary date %q", summary.Date)
	}
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	path := f.summaryPath(summary.Date)
	if err := common.CreateFileExclusive(path, b, 0o644); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrSummaryExists, path)
		}
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

// GetDailySummary reads the archive for date.
func (f *FileProvider) GetDailySummary(ctx context.Context, date string) (types.DailySummary, error) {
	if !validDate(date) {
		return types.DailySummary{}, fmt.Errorf("invalid summary date %q", date)
	}
	b, err := os.ReadFile(f.summaryPath(date))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.DailySummary{}, ErrSummaryNotFound
		}
		return types.DailySummary{}, fmt.Errorf("failed to read summary: %w", err)
	}
	var s types.DailySummary
	if err := json.Unmarshal(b, &s); err != nil {
		return types.DailySummary{}, fmt.Errorf("failed to unmarshal summary %s: %w", date, err)
	}
	return s, nil
}

// ListDailySummaryDates lists the archive directory.
func (f *FileProvider) ListDailySummaryDates(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive dir: %w", err)
	}
	var dates []string
	for _, e := range entries {
		date, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() || !validDate(date) {
			continue
		}
		dates = append(dates, date)
	}
	slices.Sort(dates)
	return dates, nil
}
