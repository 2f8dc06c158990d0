// Package app wires configuration into the services shared by the
// api-server and event-worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/config"
	"github.com/hackgods/telemed-scheduling/internal/credential"
	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/events"
	"github.com/hackgods/telemed-scheduling/internal/lock"
	"github.com/hackgods/telemed-scheduling/internal/memstore"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
	redisclient "github.com/hackgods/telemed-scheduling/internal/redis"
	"github.com/hackgods/telemed-scheduling/internal/slot"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

type Stack struct {
	Config       config.Config
	Log          *logger.Logger
	Metrics      *metrics.SchedulingMetrics
	Registry     *prometheus.Registry
	Postgres     *pgxpool.Pool // nil with the memory store
	Redis        *redis.Client // nil when REDIS_ADDR is empty
	Gate         *credential.Gate
	Slots        *slot.Registry
	Appointments *appointment.Service
	Outbox       events.Outbox
	Deliverer    *events.Deliverer
}

// Build connects the configured backends and constructs the services.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (*Stack, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Stack{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  metrics.NewSchedulingMetrics(reg),
	}

	var (
		credRepo credential.Repository
		slotRepo slot.Repository
		apptRepo appointment.Repository
		tx       db.TxRunner
	)

	switch cfg.Store {
	case config.StoreMemory:
		store := memstore.New()
		credRepo, slotRepo, apptRepo = store.Credentials(), store.Slots(), store.Appointments()
		s.Outbox = store.Outbox()
		tx = store
		log.Warn("using in-memory store, data is lost on restart")
	default:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
			MaxConns: cfg.PostgresMaxConn,
			MinConns: cfg.PostgresMinConn,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection error: %w", err)
		}
		s.Postgres = pool
		credRepo = credential.NewPgRepository(pool)
		slotRepo = slot.NewPgRepository(pool)
		apptRepo = appointment.NewPgRepository(pool)
		s.Outbox = events.NewPgOutbox(pool)
		tx = db.NewTxRunner(pool)
		log.Info("connected to Postgres")
	}

	locker := lock.NewLocalLocker(cfg.LockWait)
	var handler events.DeliveryHandler = events.NewLogHandler(log)
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.ClientOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			PoolSize: cfg.RedisPoolSize,
			Timeout:  cfg.RedisTimeout,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("redis connection error: %w", err)
		}
		s.Redis = rdb
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		handler = redisclient.NewStreamPublisher(rdb, cfg.EventsStream)
		log.Info("connected to Redis")
	}

	s.Gate = credential.NewGate(credRepo, tx, locker, s.Outbox,
		credential.WithLogger(log),
		credential.WithMetrics(s.Metrics),
	)
	s.Slots = slot.NewRegistry(slotRepo, tx, s.Gate,
		slot.WithLogger(log),
		slot.WithMetrics(s.Metrics),
		slot.WithGranule(cfg.SlotDuration),
		slot.WithLocation(cfg.ClinicLocation),
		slot.WithOpeningHours(slot.Hours{Open: cfg.ClinicOpen, Close: cfg.ClinicClose}),
	)
	s.Appointments = appointment.NewService(apptRepo, tx, s.Slots, s.Gate, s.Outbox,
		appointment.WithLogger(log),
		appointment.WithMetrics(s.Metrics),
		appointment.WithDirectBooking(cfg.BookingFlow == config.FlowDirect),
		appointment.WithCompleteFromPending(cfg.CompleteFromPending),
	)
	s.Deliverer = events.NewDeliverer(s.Outbox, handler, log, s.Metrics).WithBatchSize(cfg.OutboxBatchSize)

	return s, nil
}

// Close releases the backend connections.
func (s *Stack) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Log.WithError(err).Warn("error closing redis")
		}
	}
	if s.Postgres != nil {
		s.Postgres.Close()
	}
}

// RunWorker drains the outbox and expires stale pending appointments once
// at startup and then every interval until ctx is done.
func (s *Stack) RunWorker(ctx context.Context, interval time.Duration) {
	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Log.Info("shutdown signal received, stopping worker")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Stack) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	expired, err := s.Appointments.ExpireStalePending(runCtx, s.Config.OutboxBatchSize)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.Log.WithError(err).Error("expiry run failed")
	}

	delivered, err := s.Deliverer.Drain(runCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.Log.WithError(err).Error("outbox drain failed")
	}

	s.Log.WithField("expired", expired).
		WithField("delivered", delivered).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("worker run complete")
}
