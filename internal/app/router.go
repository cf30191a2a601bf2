package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/innkeep/innkeep/internal/agencies"
	audithttp "github.com/innkeep/innkeep/internal/audit/http"
	"github.com/innkeep/innkeep/internal/inventory"
	"github.com/innkeep/innkeep/internal/observability"
	"github.com/innkeep/innkeep/internal/platform/httpx"
	"github.com/innkeep/innkeep/internal/pricing"
	"github.com/innkeep/innkeep/internal/rbac"
	"github.com/innkeep/innkeep/internal/reservations"
	"github.com/innkeep/innkeep/jobs"
	"github.com/innkeep/innkeep/report"
)

// ReadinessCheck probes one backing service.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers are not mounted.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	InventoryHandler    *inventory.Handler
	PricingHandler      *pricing.Handler
	AgenciesHandler     *agencies.Handler
	ReservationsHandler *reservations.Handler
	AuditHandler        *audithttp.Handler
	PermissionsHandler  *rbac.PermissionsHandler
	ReportHandler       *report.Handler
	JobHandler          *jobs.Handler

	Readiness map[string]ReadinessCheck
	Metrics   *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", readinessHandler(params.Logger, params.Readiness))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Actor(params.Logger))
		mount(r, "/inventory", params.InventoryHandler)
		mount(r, "/prices", params.PricingHandler)
		mount(r, "/agencies", params.AgenciesHandler)
		mount(r, "/reservations", params.ReservationsHandler)
		mount(r, "/audit", params.AuditHandler)
		mount(r, "/permissions", params.PermissionsHandler)
		mount(r, "/reports", params.ReportHandler)
		mount(r, "/jobs", params.JobHandler)
	})

	return r
}

type routeMounter interface {
	MountRoutes(chi.Router)
}

func mount[H routeMounter](r chi.Router, prefix string, handler H) {
	var zero H
	if any(handler) == any(zero) {
		return
	}
	r.Route(prefix, handler.MountRoutes)
}

// readinessHandler runs every check concurrently and reports each result.
func readinessHandler(logger *slog.Logger, checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		results := make([]error, len(names))
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				results[i] = checks[name](ctx)
				return nil
			})
		}
		_ = g.Wait()

		status := http.StatusOK
		body := map[string]string{}
		for i, name := range names {
			if err := results[i]; err != nil {
				status = http.StatusServiceUnavailable
				body[name] = "down"
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				continue
			}
			body[name] = "up"
		}
		httpx.JSON(w, status, body)
	}
}
