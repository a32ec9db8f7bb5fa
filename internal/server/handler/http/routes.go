package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the OAuth
// proxy.
//
// Routes:
//
//	GET /auth/login     → authHandler.Login
//	GET /auth/callback  → authHandler.Callback
//	GET /auth/health    → authHandler.Health
//
// Any other path or method gets 404 "Not Found".
//
// Middleware chain (applied in order):
//  1. WithRequestLogging(logger)  — logs each request
//  2. SecurityHeaders             — nosniff, frame denial, referrer policy
//  3. CORS(allowedOrigin)         — allow-origin header, preflight answered with 204
func NewRouter(authHandler *AuthHandler, allowedOrigin string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(allowedOrigin))

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/health", authHandler.Health)
	})

	return r
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Not Found", http.StatusNotFound)
}
