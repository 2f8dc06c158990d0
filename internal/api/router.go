package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/credential"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
	"github.com/hackgods/telemed-scheduling/internal/slot"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Slots        *slot.Registry
	Gate         *credential.Gate
	Postgres     Pinger
	Redis        *redis.Client
	Metrics      *metrics.SchedulingMetrics
	Gatherer     prometheus.Gatherer // nil serves the default registry
	Log          *logger.Logger
	JWTSecret    string
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Post("/physicians", registerPhysicianHandler(cfg.Gate, log))
		r.Get("/physicians", listPhysiciansHandler(cfg.Gate, log))
		r.Get("/physicians/{id}/status", physicianStatusHandler(cfg.Gate, log))
		r.Get("/physicians/{id}/documents", listDocumentsHandler(cfg.Gate, log))
		r.Post("/physicians/{id}/slots", createSlotsHandler(cfg.Slots, log))
		r.Get("/physicians/{id}/slots", listSlotsHandler(cfg.Slots, log))

		r.Patch("/slots/{id}", toggleSlotHandler(cfg.Slots, log))

		r.Get("/document-types", listDocumentTypesHandler(cfg.Gate, log))
		r.Post("/document-types", createDocumentTypeHandler(cfg.Gate, log))
		r.Post("/documents", submitDocumentHandler(cfg.Gate, log))
		r.Post("/documents/{id}/review", reviewDocumentHandler(cfg.Gate, log))

		r.Post("/appointments", createAppointmentHandler(cfg.Appointments, log))
		r.Get("/appointments", listAppointmentsHandler(cfg.Appointments, log))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments, log))
		r.Post("/appointments/{id}/accept", transitionHandler(cfg.Appointments.Accept, log))
		r.Post("/appointments/{id}/complete", transitionHandler(cfg.Appointments.Complete, log))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Appointments, log))
	})

	return r
}
