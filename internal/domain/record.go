package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// Record is one harvested item (a comment or review) owned by a Source.
// (SourceID, ExternalID) is unique and is the upsert conflict key.
type Record struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	SourceID    uuid.UUID      `db:"source_id" json:"source_id"`
	ExternalID  string         `db:"ext_id" json:"external_id"`
	Author      *string        `db:"author" json:"author"`
	Title       *string        `db:"title" json:"title"`
	Body        *string        `db:"body" json:"body"`
	Rating      *float64       `db:"rating" json:"rating"`
	CreatedAt   *time.Time     `db:"created_at" json:"created_at"`
	HarvestedAt time.Time      `db:"harvested_at" json:"harvested_at"`
	URL         *string        `db:"url" json:"url"`
	Lang        *string        `db:"lang" json:"lang"`
	Product     *string        `db:"product" json:"product"`
	Tags        types.JSONText `db:"tags" json:"tags"`
}

// RecordFilter narrows a record listing. Nil fields are not applied.
type RecordFilter struct {
	Product   *string
	SourceID  *uuid.UUID
	RatingGTE *float64
	RatingLTE *float64
	Since     *time.Time
	Query     *string
	Limit     int
	Offset    int
}

// RecordEvent is emitted after an ingested record has been written.
type RecordEvent struct {
	Action    string    `json:"action"` // "create" or "update"
	Platform  string    `json:"platform"`
	Record    Record    `json:"record"`
	Timestamp time.Time `json:"timestamp"`
}
