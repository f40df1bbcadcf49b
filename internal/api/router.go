package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/poer2023/uptime-sync/internal/cache"
	"github.com/poer2023/uptime-sync/internal/config"
)

// Deps are the collaborators the router hands to its handlers.
type Deps struct {
	Syncer    SyncRunner
	Stats     StatsProvider
	Incidents IncidentLister
	Cache     *cache.Cache
}

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Dashboard polling is bursty; the cache absorbs most of it and the
	// limiter catches the rest.
	readLimiter := NewRateLimiter(rate.Limit(10), 20)
	readLimiter.CleanupOldLimiters()

	r.Route("/api", func(r chi.Router) {
		// Cron-invoked trigger, guarded by the shared secret
		r.Post("/sync/run", HandleTriggerSync(deps.Syncer, deps.Cache, cfg.Sync.Secret))

		// Dashboard read endpoints
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(readLimiter))

			r.Get("/status", HandleGetStatus(deps.Stats, deps.Cache))
			r.Get("/incidents", HandleGetIncidents(deps.Incidents, deps.Cache))
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
