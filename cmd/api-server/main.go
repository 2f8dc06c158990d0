package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/telemed-scheduling/internal/api"
	"github.com/hackgods/telemed-scheduling/internal/app"
	"github.com/hackgods/telemed-scheduling/internal/config"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().WithError(err).Fatal("config load error")
	}

	log := logger.New(cfg.LogLevel)
	log.WithField("env", cfg.Env).
		WithField("http_port", cfg.HTTPPort).
		WithField("store", cfg.Store).
		WithField("booking_flow", cfg.BookingFlow).
		Info("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(rootCtx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer stack.Close()

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty, every authenticated request will be rejected")
	}

	// the memory outbox lives in this process, so nobody else can drain it
	if cfg.Store == config.StoreMemory {
		go stack.RunWorker(rootCtx, cfg.WorkerInterval)
	}

	var postgres api.Pinger
	if stack.Postgres != nil {
		postgres = stack.Postgres
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Appointments: stack.Appointments,
			Slots:        stack.Slots,
			Gate:         stack.Gate,
			Postgres:     postgres,
			Redis:        stack.Redis,
			Metrics:      stack.Metrics,
			Gatherer:     stack.Registry,
			Log:          log,
			JWTSecret:    cfg.JWTSecret,
			Env:          cfg.Env,
			Version:      version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		log.WithError(err).Error("http server failed")
		stack.Close()
		os.Exit(1)
	}

	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
