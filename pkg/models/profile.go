package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the stored candidate profile relevance is judged against.
// Read-only to the pipeline; passed verbatim to the score provider.
type Profile struct {
	UserID          uuid.UUID `db:"user_id"          json:"user_id"`
	Summary         string    `db:"summary"          json:"summary"`
	Skills          []string  `db:"skills"           json:"skills"`
	YearsExperience int       `db:"years_experience" json:"years_experience"`
	Locations       []string  `db:"locations"        json:"locations"`
	DesiredRoles    []string  `db:"desired_roles"    json:"desired_roles"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updated_at"`
}
