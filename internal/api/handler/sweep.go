package handler

import (
	"context"
	"net/http"

	"github.com/jobscout/jobscout/internal/api/response"
	"github.com/jobscout/jobscout/internal/sweeper"
)

// SweepTrigger runs one sweep over all enabled schedules.
type SweepTrigger interface {
	Sweep(ctx context.Context) sweeper.SweepResult
}

// NewSweepHandler returns an http.HandlerFunc for POST /api/v1/sweep. The
// sweep itself is synchronous; the runs it fires complete in the background.
func NewSweepHandler(s SweepTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := s.Sweep(r.Context())
		response.Accepted(w, result)
	}
}
