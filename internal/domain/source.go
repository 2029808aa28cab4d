package domain

import (
	"time"

	"github.com/google/uuid"
)

// Platform kinds known to the ingestion pipeline.
const (
	KindYouTube = "youtube"
	KindReddit  = "reddit"
)

// Source is a registered external origin records are harvested from.
type Source struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Kind      string    `db:"kind" json:"kind"`
	URL       *string   `db:"url" json:"url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StoreSnapshot summarizes the persisted state for diagnostics.
type StoreSnapshot struct {
	Counts struct {
		Sources int64 `db:"sources" json:"sources"`
		Records int64 `db:"records" json:"records"`
		Reports int64 `db:"reports" json:"reports"`
	} `json:"counts"`
	RecentSources []Source `json:"recent_sources"`
	RecentRecords []Record `json:"recent_records"`
}
