package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"sac/internal/attendance"
	"sac/internal/config"
	"sac/internal/datasource"
	"sac/internal/handlers"
	"sac/internal/logger"
	"sac/internal/middleware"
	"sac/internal/o365"
	sentryutil "sac/internal/sentry"
	"sac/internal/session"
)

func main() {
	// Load configuration from .env and environment variables
	config.Load()
	logger.SetLevel(config.Cfg.LogLevel)
	if err := config.Cfg.Validate(); err != nil {
		// sentry is not initialized yet
		log.Fatal(err)
	}

	// Initialize Sentry (non-blocking if SENTRY_DSN is empty)
	sentryutil.Init()
	defer sentryutil.Flush()

	policy, err := attendance.ParsePolicy(config.Cfg.ScanPolicy)
	if err != nil {
		sentryutil.Fatal(err, map[string]string{"phase": "config"})
	}

	ed := datasource.NewFromConfig()
	api := &handlers.API{
		Sessions:   session.NewManager(newSessionStore(), config.Cfg.SessionSecret, config.Cfg.SessionTTL, strings.HasPrefix(config.Cfg.BaseURL, "https://")),
		Auth:       o365.NewFromConfig(),
		Directory:  ed,
		Scanner:    attendance.NewEngine(policy, ed, ed),
		AfterLogin: "/",
	}

	// Rate limiter from config
	limiter := handlers.NewRateLimiter(
		config.Cfg.RateLimitRPS,
		config.Cfg.RateLimitBurst,
		time.Second,
	)

	mux := http.NewServeMux()

	// Office 365 sign-in
	mux.HandleFunc("/api/auth/login", api.LoginHandler)
	mux.HandleFunc("/api/auth/redirect", api.RedirectHandler)
	mux.HandleFunc("/api/auth/logout", api.LogoutHandler)

	// API routes
	mux.HandleFunc("/api/me", api.MeHandler)
	mux.HandleFunc("/api/scan", api.ScanHandler)
	mux.HandleFunc("/api/health", api.HealthHandler)

	// Admin routes (protected by ADMIN_API_KEY)
	mux.HandleFunc("/api/admin/resolve", api.AdminResolveHandler)

	mux.HandleFunc("/", handlers.NotFoundHandler)

	// Wrap with middleware: Recovery → SecurityHeaders → RequestID → Gzip (if enabled) → Rate Limiter
	var handler http.Handler = limiter.Middleware(mux)
	if config.Cfg.GzipEnabled {
		handler = middleware.Gzip(handler)
	}
	handler = middleware.RequestIDFromHeader(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recovery(handler)

	logger.Info("server starting", map[string]interface{}{
		"port":     config.Cfg.Port,
		"policy":   policy.String(),
		"sessions": config.Cfg.SessionStore,
	})
	fmt.Printf("SAC running on http://localhost:%s\n", config.Cfg.Port)
	srv := &http.Server{
		Addr:              ":" + config.Cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sentryutil.Fatal(srv.ListenAndServe(), map[string]string{"phase": "listen"})
}

func newSessionStore() session.Store {
	if config.Cfg.SessionStore == "redis" {
		store, err := session.NewRedisStore(config.Cfg.RedisURL)
		if err != nil {
			sentryutil.Fatal(err, map[string]string{"phase": "session-store"})
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			sentryutil.Fatal(fmt.Errorf("session: redis unreachable: %w", err), map[string]string{"phase": "session-store"})
		}
		return store
	}

	store := session.NewMemoryStore()
	// Periodic cleanup of expired sessions
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			store.Cleanup()
		}
	}()
	return store
}
