package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/peakguard/peakguard/pkg/config"
	"github.com/peakguard/peakguard/pkg/ess"
	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/notify"
	"github.com/peakguard/peakguard/pkg/server"
	"github.com/peakguard/peakguard/pkg/storage"
	"github.com/peakguard/peakguard/pkg/thermostat"
)

func main() {
	// init packages; settings must be registered first since the server
	// builds the controller from them
	settings := config.Configured()
	s := storage.Configured()
	e := ess.Configured()
	th := thermostat.Configured()
	n := notify.Configured()

	// init server
	srv := server.Configured(settings, e, th, s, n)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level := log.LLogLevel()
	log.Configure(level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	// Run blocks until the context is canceled or the server fails
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
