package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jobscout/jobscout/internal/api/response"
	"github.com/jobscout/jobscout/internal/store"
	"github.com/jobscout/jobscout/pkg/models"
)

// ListingLister lists a user's discovered listings.
type ListingLister interface {
	ListListings(ctx context.Context, filter store.ListingFilter) ([]*models.Listing, int, error)
}

// NewListListingsHandler returns an http.HandlerFunc for
// GET /api/v1/users/{userID}/listings. Supports recommendation and min_score
// query filters.
func NewListListingsHandler(s ListingLister) http.HandlerFunc {
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

		filter := store.ListingFilter{
			UserID: userID,
			Page:   page,
			Limit:  limit,
		}

		if rec := r.URL.Query().Get("recommendation"); rec != "" {
			if !models.ValidRecommendation(rec) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"recommendation must be one of apply, review, skip", nil)
				return
			}
			filter.Recommendation = rec
		}

		if v := r.URL.Query().Get("min_score"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 100 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"min_score must be an integer between 0 and 100", nil)
				return
			}
			filter.MinScore = &n
		}

		listings, total, err := s.ListListings(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if listings == nil {
			listings = []*models.Listing{}
		}

		response.Collection(w, listings, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}
