package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jobscout/jobscout/internal/api/response"
	"github.com/jobscout/jobscout/pkg/models"
)

// RunLister lists a user's run history.
type RunLister interface {
	ListRuns(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.ScanRun, int, error)
}

// NewListRunsHandler returns an http.HandlerFunc for
// GET /api/v1/users/{userID}/runs.
func NewListRunsHandler(s RunLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userID must be a valid UUID", nil)
			return
		}

		page, limit, ok := parsePagination(w, r)
		if !ok {
			return
		}

		runs, total, err := s.ListRuns(r.Context(), userID, page, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if runs == nil {
			runs = []*models.ScanRun{}
		}

		response.Collection(w, runs, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// parsePagination reads page and limit query params, writing a 400 on bad
// input. Defaults: page 1, limit 20, capped at 100.
func parsePagination(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, 20

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return 0, 0, false
		}
		page = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return 0, 0, false
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, true
}
