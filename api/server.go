/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. observe:    slog access log and Prometheus HTTP metrics
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/requests/*       Submission, decisions, withdrawal, audit
  /api/employees/*      Per-employee requests and balances
  /api/allocations      Admin balance grants
  /api/holidays/*       Holiday calendar management
  /api/calendar/*       Chargeable days and working-day lookups
  /metrics              Prometheus exposition (when metrics are configured)
  /healthz              Liveness and store reachability

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/leave-workflow/metrics"
)

// RouterOptions configures the parts of the router outside the handlers.
type RouterOptions struct {
	AllowedOrigins []string
	// Metrics, when set, records HTTP metrics and serves /metrics.
	Metrics *metrics.Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe(h.Logger, opts.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Request routes
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Get("/", h.ListAwaiting)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/decisions", h.DecideRequest)
			r.Post("/{id}/withdraw", h.WithdrawRequest)
			r.Get("/{id}/approvals", h.ListApprovals)
		})

		// Employee routes
		r.Route("/employees/{id}", func(r chi.Router) {
			r.Get("/requests", h.ListEmployeeRequests)
			r.Get("/balances/{leaveType}", h.GetBalance)
		})

		r.Post("/allocations", h.CreateAllocation)

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		// Calendar routes
		r.Route("/calendar", func(r chi.Router) {
			r.Post("/chargeable-days", h.ChargeableDays)
			r.Get("/working-day", h.WorkingDay)
		})
	})

	return r
}

// observe logs each request and records it under its route pattern, so
// /api/requests/{id} is one series rather than one per request ID.
func observe(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if m != nil {
				m.ObserveHTTP(r.Method, route, status, elapsed)
			}
			logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("elapsed", elapsed),
				slog.String("trace_id", middleware.GetReqID(r.Context())),
				slog.String("remote", r.RemoteAddr),
			)
		})
	}
}
