package models

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline stages. A run moves strictly forward through the first four and
// ends in Done or Failed; listing-level errors never change the stage.
const (
	StageScraping   = "scraping"
	StageExtracting = "extracting"
	StageAnalyzing  = "analyzing"
	StageNotifying  = "notifying"
	StageDone       = "done"
	StageFailed     = "failed"
)

// IsTerminalStage reports whether a run in the given stage has finished.
func IsTerminalStage(stage string) bool {
	return stage == StageDone || stage == StageFailed
}

// RunCounts aggregates per-run observability counters. They are persisted at
// each stage transition and never used to gate correctness of later runs.
type RunCounts struct {
	Scraped        int `db:"scraped"         json:"scraped"`
	New            int `db:"new"             json:"new"`
	Skipped        int `db:"skipped"         json:"skipped"`
	Extracted      int `db:"extracted"       json:"extracted"`
	Analyzed       int `db:"analyzed"        json:"analyzed"`
	AnalysisFailed int `db:"analysis_failed" json:"analysis_failed"`
	FailedSources  int `db:"failed_sources"  json:"failed_sources"`
	Notified       int `db:"notified"        json:"notified"`
}

// ScanRun tracks one execution of the scan pipeline for a single user.
// Created at sweeper hand-off; mutated only by the pipeline coordinator for
// that run.
type ScanRun struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       uuid.UUID  `db:"user_id"       json:"user_id"`
	Stage        string     `db:"stage"         json:"stage"`
	Counts       RunCounts  `db:"counts"        json:"counts"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    time.Time  `db:"started_at"    json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
}
