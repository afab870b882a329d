// Package api wires the HTTP surface of the JobScout server.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/jobscout/jobscout/internal/api/middleware"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler       http.HandlerFunc
	SweepHandler        http.HandlerFunc
	ListRunsHandler     http.HandlerFunc
	ListListingsHandler http.HandlerFunc
}

// NewRouter builds the chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Health stays outside the rate limit so probes are never throttled.
	r.Get("/api/v1/health", deps.HealthHandler)

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/sweep", deps.SweepHandler)
		r.Get("/api/v1/users/{userID}/runs", deps.ListRunsHandler)
		r.Get("/api/v1/users/{userID}/listings", deps.ListListingsHandler)
	})

	return r
}
