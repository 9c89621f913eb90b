package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"

	"github.com/peakguard/peakguard/pkg/controller"
	"github.com/peakguard/peakguard/pkg/ess"
	"github.com/peakguard/peakguard/pkg/ledger"
	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/notify"
	"github.com/peakguard/peakguard/pkg/storage"
	"github.com/peakguard/peakguard/pkg/thermostat"
	"github.com/peakguard/peakguard/pkg/types"
	"github.com/peakguard/peakguard/pkg/utility"
)

// tokenVerifier validates a Google ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server drives the check cycle on a ticker and serves the inspection API.
type Server struct {
	controller  *controller.Controller
	finalizer   *controller.Finalizer
	ledger      *ledger.Ledger
	storage     storage.Database
	ess         ess.System
	thermostats thermostat.System
	notifier    notify.Notifier
	settings    *types.Settings

	listenAddr    string
	checkInterval time.Duration
	httpServer    *http.Server
	serverName    string

	authEmail    string
	authVerifier tokenVerifier
	bypassAuth   bool

	// cycles and rollovers never run concurrently
	cycleMu sync.Mutex
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Controller  *controller.Controller
	Finalizer   *controller.Finalizer
	Ledger      *ledger.Ledger
	Storage     storage.Database
	ESS         ess.System
	Thermostats thermostat.System
	Notifier    notify.Notifier
	Settings    *types.Settings
}

func newServer(d Deps) *Server {
	return &Server{
		controller:  d.Controller,
		finalizer:   d.Finalizer,
		ledger:      d.Ledger,
		storage:     d.Storage,
		ess:         d.ESS,
		thermostats: d.Thermostats,
		notifier:    d.Notifier,
		settings:    d.Settings,
		serverName:  "peakguard",
	}
}

// Configured initializes the Server. The controller, ledger and finalizer are
// built from settings once flags are parsed.
// It uses lflag to register command-line flags for configuration.
func Configured(settings *types.Settings, e ess.System, th thermostat.System, db storage.Database, n notify.Notifier) *Server {
	srv := newServer(Deps{
		Storage:     db,
		ESS:         e,
		Thermostats: th,
		Notifier:    n,
		Settings:    settings,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	checkInterval := lflag.Duration("check-interval", 5*time.Minute, "How often to run a check cycle")
	apiAudience := lflag.String("api-audience", "", "Audience to validate ID tokens for /api/ against")
	authEmail := lflag.String("api-email", "", "Service account email allowed to call /api/")
	bypassAuth := lflag.Bool("api-bypass-auth", false, "Allow unauthenticated calls to /api/")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.checkInterval = *checkInterval
		if srv.checkInterval <= 0 {
			log.Ctx(context.Background()).Error("check-interval must be positive")
			os.Exit(1)
		}
		srv.authEmail = *authEmail
		srv.bypassAuth = *bypassAuth
		if *apiAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.authVerifier = provider.Verifier(&oidc.Config{ClientID: *apiAudience}).Verify
		}

		tariff, err := utility.NewTariff(*settings)
		if err != nil {
			panic(fmt.Sprintf("invalid peak schedule: %v", err))
		}
		srv.ledger = ledger.New(db, tariff.Location)
		srv.controller = controller.New(controller.Config{
			ESS:         e,
			Thermostats: th,
			Ledger:      srv.ledger,
			Notifier:    n,
			Tariff:      tariff,
			Settings:    *settings,
		})
		srv.finalizer = controller.NewFinalizer(srv.ledger, n, *settings)
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/state", s.handleState)
	apiMux.HandleFunc("GET /api/history", s.handleHistory)
	apiMux.HandleFunc("GET /api/devices", s.handleDevices)
	apiMux.HandleFunc("POST /api/finalize", s.handleFinalize)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.requestLogMiddleware(s.authMiddleware(apiMux)))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and the check cycle loop. It blocks until the
// context is canceled or the HTTP server fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-errChan:
			return fmt.Errorf("server error: %w", err)
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle runs one check cycle. Failures are logged and notified; the next
// tick tries again.
func (s *Server) runCycle(ctx context.Context) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	if ctx.Err() != nil {
		return
	}
	err := s.controller.RunCheckCycle(ctx)
	if err == nil {
		return
	}
	log.Ctx(ctx).ErrorContext(ctx, "check cycle failed", slog.Any("error", err))
	if errors.Is(err, controller.ErrUnhealthy) {
		return
	}
	s.notifier.Notify(ctx, notify.SeverityCritical, notify.KindAPIError, map[string]string{
		"Operation": "check cycle",
		"Error":     err.Error(),
	})
}

// finalize runs the day rollover between cycles.
func (s *Server) finalize(ctx context.Context) (string, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.finalizer.FinalizeDay(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithAttrs(r.Context(), slog.String("reqPath", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
