package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tierdrift/internal/config"
	"github.com/mcdev12/tierdrift/internal/game"
	"github.com/mcdev12/tierdrift/internal/gateway"
	"github.com/mcdev12/tierdrift/internal/history"
	"github.com/mcdev12/tierdrift/internal/registry"
	"github.com/mcdev12/tierdrift/internal/scheduler"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load configuration")
	}

	clock := clockwork.NewRealClock()

	reg := registry.New(registry.Options{
		CodeLength:    cfg.Sessions.CodeLength,
		CodeAlphabet:  cfg.Sessions.CodeAlphabet,
		SessionTTL:    cfg.TTL(),
		SweepInterval: cfg.SweepInterval(),
	}, clock)

	connConfig := gateway.DefaultConnectionConfig()
	connConfig.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == cfg.Server.AllowedOrigin
	}
	cm := gateway.NewConnectionManager(connConfig)

	sch, hist := buildService(cm, reg, clock, cfg)

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("allowed_origin", cfg.Server.AllowedOrigin).
		Bool("debug_controls", cfg.Debug.EnableControls).
		Msg("starting tierdrift server")

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", cm.HandleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Server.AllowedOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Janitor reaps idle and emptied sessions; its deletions still need their
	// timers and rewind buffers released.
	go reg.RunJanitor(ctx, func(s *game.Session) {
		sch.Cancel(s.Code)
		hist.Drop(s.Code)
	})

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("tierdrift server shutdown complete")
}

// buildService wires the scheduler, optional rewind store and gateway
// service together around the shared clock. The service itself lives on as
// the connection manager's handler.
func buildService(cm *gateway.ConnectionManager, reg *registry.Registry, clock clockwork.Clock, cfg *config.Config) (*scheduler.Scheduler, *history.Store) {
	durations := cfg.Durations()

	var hist *history.Store
	if cfg.Debug.EnableControls {
		hist = history.NewStore(clock, durations)
	}

	// The broadcaster is the gateway service itself; the scheduler gets it
	// right after construction.
	var svc *gateway.Service
	sch := scheduler.New(clock, durations, broadcasterFunc(func(s *game.Session) { svc.BroadcastState(s) }))
	if hist != nil {
		sch.SetRecorder(hist)
	}

	svc = gateway.NewService(cm, reg, sch, hist, gateway.Options{
		LobbyCapacity: cfg.Sessions.LobbyCapacity,
		MaxNameLength: cfg.Sessions.MaxNameLength,
		DebugControls: cfg.Debug.EnableControls,
	})
	return sch, hist
}

type broadcasterFunc func(*game.Session)

func (f broadcasterFunc) BroadcastState(s *game.Session) { f(s) }
