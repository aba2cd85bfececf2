package httpapi

import (
	"net/http"

	"grouporder-services/internal/config"
	"grouporder-services/internal/http/handlers"
	"grouporder-services/internal/metrics"
	"grouporder-services/internal/middleware"
	"grouporder-services/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Opening sessions is the only write on the REST surface.
const (
	createLimit = rate.Limit(1)
	createBurst = 5
)

func NewRouter(h *handlers.Handler, reg *metrics.Registry, logger *zap.Logger, cfg config.Config, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Telemetry(logger, reg))

	if cfg.Env == "development" || len(cfg.CorsAllowedOrigins) > 0 {
		options := cors.Options{
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Authorization",
				"Content-Type",
				"X-Requested-With",
				"X-Request-Id",
				"Cache-Control",
			},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}

		if cfg.Env == "development" {
			options.AllowOriginFunc = func(_ *http.Request, origin string) bool {
				return true
			}
		} else {
			options.AllowedOrigins = cfg.CorsAllowedOrigins
		}

		r.Use(cors.Handler(options))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if reg != nil {
		r.Handle("/metrics", reg.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(setResponseHeader("X-Group-Order-Service", "native"))
		r.Use(middleware.OptionalAuth(cfg.JWTSecret))

		r.Get("/catalog", h.CatalogList)
		r.With(middleware.RequireUser, middleware.RateLimit(createLimit, createBurst)).Post("/group-orders", h.GroupOrderCreate)
		r.Get("/group-orders/code/{code}", h.GroupOrderByCode)
		r.Get("/group-orders/{id}", h.GroupOrderDetail)
		r.Get("/group-orders/{id}/totals", h.GroupOrderTotals)
		r.Get("/group-orders/{id}/receipt", h.GroupOrderReceipt)
	})

	if wsServer != nil {
		r.Get("/ws/group-order", wsServer.GroupOrderWS)
	}

	return r
}

func setResponseHeader(name string, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(name, value)
			next.ServeHTTP(w, r)
		})
	}
}
