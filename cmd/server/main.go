package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gonogo-host/internal/platform/config"
	"gonogo-host/internal/platform/logger"
	"gonogo-host/internal/platform/metrics"
	"gonogo-host/internal/protocol"
	"gonogo-host/internal/session"
	"gonogo-host/internal/sim"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "text")
	paramsFile := config.GetEnv("PARAMS_FILE", "")
	simSession := config.GetEnvBool("SIM_SESSION", false)

	log := logger.New(logLevel, logFormat)

	params := protocol.DefaultParams()
	if paramsFile != "" {
		var err error
		params, err = protocol.LoadParams(paramsFile)
		if err != nil {
			log.Error("load parameters", "file", paramsFile, "error", err)
			os.Exit(1)
		}
	}

	met := metrics.New()
	mgr := session.NewManager(session.RealClock(), log, met)
	h := session.NewHandler(mgr, params, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(mgr.ActiveCount()) }).ServeHTTP(w, r)
	})
	h.RegisterRoutes(r)

	if simSession {
		if err := bootSimSession(mgr, params, log); err != nil {
			log.Error("boot sim session", "error", err)
			os.Exit(1)
		}
	}

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"params_file", paramsFile,
		"sim_session", simSession,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	mgr.CloseAll()

	log.Info("server stopped")
}

// bootSimSession creates and starts one simulator-driven session so the
// closed loop runs end to end without a rig attached.
func bootSimSession(mgr *session.Manager, params protocol.Params, log *slog.Logger) error {
	ctrl := sim.New(log)
	eng, err := mgr.Create(params, ctrl)
	if err != nil {
		return err
	}
	ctrl.Bind(eng)
	if err := eng.Start(); err != nil {
		return err
	}
	log.Info("sim session running", "session_id", eng.ID())
	return nil
}
