/*
Package handler provides the HTTP surface of the sync daemon.

This file defines the diagnostic Router: health and a read-only state snapshot
of the realtime service. The storefront's own API lives elsewhere; these
endpoints exist for operations and probes only.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"storesync/internal/app/realtime"
	"storesync/internal/configs"
	"storesync/internal/pkg/limiter"
	"storesync/internal/pkg/logx"
	"storesync/internal/pkg/resp"
)

// Router sets up the daemon's HTTP routing table (chi.Router).
// It configures CORS from the allowed-origins list and applies the shared
// middleware stack before the diagnostic endpoints.
func Router(service *realtime.Service, cfg *configs.AppConfig) http.Handler {
	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if cfg.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(cfg.AllowedOrigins) > 0 {
		corsAllowedOrigins = cfg.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	rateLimiter := limiter.NewIPRateLimiter(5, 10)
	r.Use(rateLimiter.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":    "ok",
			"service":   "storesync",
			"connected": service.IsConnected(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, service.State())
	})

	return r
}
