package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/embr/internal/api/middleware"
	"github.com/eldtechnologies/embr/internal/broadcast"
	"github.com/eldtechnologies/embr/internal/config"
	"github.com/eldtechnologies/embr/internal/handlers"
	"github.com/eldtechnologies/embr/internal/kv"
	"github.com/eldtechnologies/embr/internal/room"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, rooms *room.Service, events *broadcast.Broadcaster, store *kv.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(store.Client(), logger, cfg.RateLimitWhitelist)
	r.Use(limiter.Middleware)

	// CORS - rooms are joined from anywhere by link
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Room-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(rooms, events, store)
	guard := middleware.NewRoomGuard(rooms)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Post("/room", h.CreateRoom)

	r.Route("/room/{id}", func(r chi.Router) {
		// Joining needs only the room id; everything else needs a token.
		r.Post("/join", h.JoinRoom)

		r.Group(func(r chi.Router) {
			r.Use(guard.Require)

			r.Get("/ttl", h.GetRoomTTL)
			r.Delete("/", h.DestroyRoom)
			r.Post("/messages", h.PostMessage)
			r.Get("/messages", h.ListMessages)
			r.Get("/events", h.StreamEvents)
		})
	})

	return r
}
