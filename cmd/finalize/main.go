// Command finalize archives the current day and resets the live state. It is
// meant to run from a timer shortly before local midnight.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/peakguard/peakguard/pkg/config"
	"github.com/peakguard/peakguard/pkg/controller"
	"github.com/peakguard/peakguard/pkg/ledger"
	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/notify"
	"github.com/peakguard/peakguard/pkg/storage"
)

func main() {
	settings := config.Configured()
	s := storage.Configured()
	n := notify.Configured()
	lflag.Configure()

	log.Configure(log.LLogLevel())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loc, err := settings.Location()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid timezone", slog.Any("error", err))
		os.Exit(1)
	}

	f := controller.NewFinalizer(ledger.New(s, loc), n, *settings)
	location, err := f.FinalizeDay(ctx)
	if cerr := s.Close(); cerr != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", cerr))
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to finalize day", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "finalized day", slog.String("location", location))
}
