// Package models contains shared data models used across the JobScout codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanSchedule is a user's recurring scan configuration. It is owned by the
// user and mutated only through settings updates; the sweeper treats it as
// read-only.
type ScanSchedule struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	UserID          uuid.UUID `db:"user_id"          json:"user_id"`
	Enabled         bool      `db:"enabled"          json:"enabled"`
	CronExpr        string    `db:"cron_expr"        json:"cron_expr"`
	Timezone        string    `db:"timezone"         json:"timezone"`
	SourceURLs      []string  `db:"source_urls"      json:"source_urls"`
	NotifyChannel   *string   `db:"notify_channel"   json:"notify_channel,omitempty"`
	NotifyThreshold int       `db:"notify_threshold" json:"notify_threshold"`
	CreatedAt       time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updated_at"`
}
