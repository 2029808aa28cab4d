package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawItem is a platform item normalized by a fetcher, before it becomes a Record.
type RawItem struct {
	ExternalID  string     `json:"id"`
	Author      *string    `json:"author"`
	Body        *string    `json:"body"`
	PublishedAt *time.Time `json:"published_at"`
	Permalink   *string    `json:"permalink"`
	Language    *string    `json:"lang,omitempty"`
}

// UpsertStats holds the outcome of writing one fetched batch.
type UpsertStats struct {
	Total     int `json:"total"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
	Published int `json:"published,omitempty"`
}

// IngestRequest describes one single-source ingestion run.
type IngestRequest struct {
	Platform string
	Target   string
	// OriginURL overrides the platform's canonical URL when the caller supplied one.
	OriginURL string
	Budget    int
	Cooldown  time.Duration
	DryRun    bool
}

// IngestResult is reported for a single-source ingestion run.
type IngestResult struct {
	Platform string        `json:"platform"`
	Target   string        `json:"target"`
	SourceID *uuid.UUID    `json:"source_id,omitempty"`
	Stats    UpsertStats   `json:"stats"`
	DryRun   bool          `json:"dry,omitempty"`
	Preview  []RawItem     `json:"preview,omitempty"`
	Duration time.Duration `json:"-"`
}

// BatchRequest describes a batch run over recently registered sources.
type BatchRequest struct {
	Platform   string
	MaxSources int
	Budget     int
	DryRun     bool
}

// BatchOutcome is the per-source result of a batch run.
type BatchOutcome struct {
	SourceID uuid.UUID    `json:"source_id"`
	Target   string       `json:"target"`
	OK       bool         `json:"ok"`
	Stats    *UpsertStats `json:"stats,omitempty"`
	Error    string       `json:"error,omitempty"`
}
