package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ecoaction/internal/handler"
	"ecoaction/internal/httputil"
	appmw "ecoaction/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	AuthHandler       *handler.AuthHandler
	UserHandler       *handler.UserHandler
	FriendshipHandler *handler.FriendshipHandler
	ActionHandler     *handler.ActionHandler
	ImageHandler      *handler.ImageHandler

	Tokens         appmw.TokenParser
	AllowedOrigins []string
	Logger         *slog.Logger

	// Registry receives the HTTP collectors and backs /metrics. A fresh
	// registry is used when nil.
	Registry *prometheus.Registry
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := appmw.NewMetrics(registry)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmw.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Public routes - no authentication required
	r.Route("/auth", func(r chi.Router) {
		r.Post("/otp", cfg.AuthHandler.RequestOTP)
		r.Post("/otp/verify", cfg.AuthHandler.VerifyOTP)
		r.Post("/logout", cfg.AuthHandler.Logout)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", cfg.UserHandler.List)
		r.Get("/{id}", cfg.UserHandler.Get)
		r.Get("/{id}/photos", cfg.ImageHandler.ListForUser)
		r.Get("/{id}/activity", cfg.ActionHandler.DailySummary)
		r.Get("/{id}/actions/count", cfg.ActionHandler.Count)
	})

	r.Get("/leaderboard", cfg.UserHandler.Leaderboard)
	r.Get("/actions/recent", cfg.ActionHandler.Recent)
	r.Get("/images/{id}", cfg.ImageHandler.Get)
	r.Get("/images/{id}/thumbnail", cfg.ImageHandler.Thumbnail)

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(appmw.AuthMiddleware(cfg.Tokens))

		// Current user endpoints
		r.Route("/me", func(r chi.Router) {
			r.Get("/", cfg.AuthHandler.Me)
			r.Patch("/", cfg.UserHandler.ChangeProfile)
			r.Put("/points", cfg.UserHandler.UpdatePoints)
			r.Post("/avatar", cfg.UserHandler.UploadAvatar)
			r.Post("/devices", cfg.UserHandler.RegisterDevice)
			r.Delete("/devices", cfg.UserHandler.UnregisterDevice)
		})

		r.Post("/actions", cfg.ActionHandler.Log)
		r.Post("/images", cfg.ImageHandler.Upload)

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", cfg.FriendshipHandler.List)
			r.Delete("/{friendID}", cfg.FriendshipHandler.Unfriend)

			r.Get("/requests", cfg.FriendshipHandler.ListRequests)
			r.Post("/requests", cfg.FriendshipHandler.Send)
			r.Post("/requests/{id}/accept", cfg.FriendshipHandler.Accept)
			r.Post("/requests/{id}/deny", cfg.FriendshipHandler.Deny)
		})
	})

	return r
}
