package api

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/cloudguard/internal/accounts"
	"github.com/hugh/cloudguard/internal/api/handlers"
	"github.com/hugh/cloudguard/internal/api/middleware"
	"github.com/hugh/cloudguard/internal/auth"
	"github.com/hugh/cloudguard/internal/notify"
	"github.com/hugh/cloudguard/internal/scans"
	"github.com/hugh/cloudguard/internal/web"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          redis.UniversalClient
	Logger         *slog.Logger
	Verifier       auth.TokenVerifier
	Users          auth.UserResolver
	Provisioner    auth.AccountProvisioner
	Accounts       *accounts.Service
	Scans          *scans.Service
	Notifier       notify.Notifier
	Limiter        middleware.Limiter
	Templates      *web.Templates
	StaticFS       fs.FS
	AllowedOrigins []string // CORS allowed origins
	SignInURL      string
	SecureCookie   bool
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.Verifier, cfg.Provisioner, cfg.SecureCookie, cfg.Logger)
	accountHandler := handlers.NewAccountHandler(cfg.Accounts, cfg.Logger)
	scanHandler := handlers.NewScanHandler(cfg.Scans, cfg.Logger)
	notificationHandler := handlers.NewNotificationHandler(cfg.Notifier, cfg.Logger)
	dashboardHandler := handlers.NewDashboardHandler(cfg.Users, cfg.Accounts, cfg.Scans, cfg.Templates, cfg.SignInURL, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Get("/auth/callback", authHandler.Callback)
		r.Post("/auth/session", authHandler.Session)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/notifications/slack", notificationHandler.Usage)
		r.Post("/notifications/slack", notificationHandler.SendSlack)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Verifier))
			r.Use(middleware.RequireUser(cfg.Users, cfg.Logger))
			if cfg.Limiter != nil {
				r.Use(middleware.RateLimit(cfg.Limiter, cfg.Logger))
			}

			r.Get("/me", authHandler.Me)

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", accountHandler.List)
				r.Post("/", accountHandler.Create)
				r.Delete("/", accountHandler.Delete)
				r.Post("/{id}/test", accountHandler.Test)
			})

			r.Route("/scan", func(r chi.Router) {
				r.Get("/", scanHandler.List)
				r.Post("/", scanHandler.Trigger)
				r.Get("/{id}", scanHandler.Get)
			})
		})
	})

	// Web dashboard routes
	r.Get("/login", dashboardHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Verifier))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		})
		r.Get("/dashboard", dashboardHandler.Index)
	})

	// Static files
	if cfg.StaticFS != nil {
		fileServer := http.FileServer(http.FS(cfg.StaticFS))
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	return &Router{r}
}
