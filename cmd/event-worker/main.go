package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hackgods/telemed-scheduling/internal/app"
	"github.com/hackgods/telemed-scheduling/internal/config"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().WithError(err).Fatal("config load error")
	}

	log := logger.New(cfg.LogLevel)
	if cfg.Store != config.StorePostgres {
		log.Fatal("event-worker needs STORE=postgres; the memory store is drained by the api-server itself")
	}

	log.WithField("env", cfg.Env).
		WithField("interval", cfg.WorkerInterval.String()).
		WithField("stream", cfg.EventsStream).
		Info("event-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(rootCtx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer stack.Close()

	if stack.Redis == nil {
		log.Warn("REDIS_ADDR not set, events are only logged")
	}

	stack.RunWorker(rootCtx, cfg.WorkerInterval)
}
