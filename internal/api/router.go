package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medagenda/clinic-scheduling/internal/observability/metrics"
)

type RouterConfig struct {
	Service  SchedulingService
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
	Location *time.Location
	Metrics  *metrics.HTTPMetrics
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	// Scheduling endpoints
	r.Get("/clinicians/{id}/slots", listSlotsHandler(cfg.Service, loc))
	r.Get("/clinicians/{id}/next-available", nextAvailableHandler(cfg.Service))
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))

	return r
}
