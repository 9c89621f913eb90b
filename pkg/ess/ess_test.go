package ess

import (
	"log/slog"

	"github.com/peakguard/peakguard/pkg/log"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}
