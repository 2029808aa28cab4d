package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// RecordInput is the client representation of a record to create. ext_id is
// accepted as an alias of external_id.
type RecordInput struct {
	SourceID   string          `json:"source_id"`
	ExternalID string          `json:"external_id"`
	ExtID      string          `json:"ext_id"`
	Author     *string         `json:"author"`
	Title      *string         `json:"title"`
	Body       *string         `json:"body"`
	Rating     *float64        `json:"rating"`
	CreatedAt  string          `json:"created_at"`
	URL        *string         `json:"url"`
	Lang       *string         `json:"lang"`
	Product    *string         `json:"product"`
	Tags       json.RawMessage `json:"tags"`
}

// ToRecord validates the input and converts it into a Record ready to be stored.
func (in RecordInput) ToRecord() (*Record, error) {
	extID := strings.TrimSpace(in.ExternalID)
	if extID == "" {
		extID = strings.TrimSpace(in.ExtID)
	}
	if strings.TrimSpace(in.SourceID) == "" || extID == "" || strings.TrimSpace(in.CreatedAt) == "" {
		return nil, Invalid("required fields: source_id, external_id, created_at (ISO-8601)")
	}

	sourceID, err := uuid.Parse(strings.TrimSpace(in.SourceID))
	if err != nil {
		return nil, Invalid("source_id must be a UUID")
	}

	createdAt, err := ParseTimestamp(in.CreatedAt)
	if err != nil {
		return nil, Invalid("created_at must be an ISO-8601 timestamp")
	}

	tags := types.JSONText("{}")
	if raw := bytes.TrimSpace(in.Tags); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if raw[0] != '{' || !json.Valid(raw) {
			return nil, Invalid("tags must be a JSON object")
		}
		tags = types.JSONText(raw)
	}

	return &Record{
		SourceID:   sourceID,
		ExternalID: extID,
		Author:     in.Author,
		Title:      in.Title,
		Body:       in.Body,
		Rating:     in.Rating,
		CreatedAt:  &createdAt,
		URL:        in.URL,
		Lang:       in.Lang,
		Product:    in.Product,
		Tags:       tags,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	DateLayout,
}

// ParseTimestamp accepts an RFC 3339 timestamp, a zone-less ISO-8601 date-time
// (read as UTC) or a plain date.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
