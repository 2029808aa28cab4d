package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pullview/internal/domain"
)

var (
	recordLimit  = intParam{name: "limit", def: 20, min: 1, max: 100}
	recordOffset = intParam{name: "offset", def: 0, min: 0, max: 1 << 30}
)

type listRecordsResponse struct {
	OK        bool            `json:"ok"`
	Items     []domain.Record `json:"items"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
	Product   *string         `json:"product"`
	SourceID  *uuid.UUID      `json:"source_id"`
	RatingGTE *float64        `json:"rating_gte"`
	RatingLTE *float64        `json:"rating_lte"`
	Since     *time.Time      `json:"since"`
	Query     *string         `json:"q"`
}

// recordFilter assembles the listing filter from the query string. An unparsable
// since is ignored; unparsable rating bounds or source_id are rejected.
func recordFilter(r *http.Request) (domain.RecordFilter, error) {
	q := r.URL.Query()
	filter := domain.RecordFilter{
		Limit:  recordLimit.read(r),
		Offset: recordOffset.read(r),
	}

	if v := strings.TrimSpace(q.Get("product")); v != "" {
		filter.Product = &v
	}
	if v := strings.TrimSpace(q.Get("source_id")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, domain.Invalid("source_id must be a UUID")
		}
		filter.SourceID = &id
	}
	for _, b := range []struct {
		name string
		dst  **float64
	}{
		{"rating_gte", &filter.RatingGTE},
		{"rating_lte", &filter.RatingLTE},
	} {
		v := strings.TrimSpace(q.Get(b.name))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, domain.Invalid("%s must be a number", b.name)
		}
		*b.dst = &f
	}
	if v := strings.TrimSpace(q.Get("since")); v != "" {
		if t, err := domain.ParseTimestamp(v); err == nil {
			filter.Since = &t
		}
	}
	if v := strings.TrimSpace(q.Get("q")); v != "" {
		filter.Query = &v
	}
	return filter, nil
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := recordFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	records, err := s.deps.Records.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}

	s.writeJSON(w, r, http.StatusOK, listRecordsResponse{
		OK:        true,
		Items:     records,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
		Product:   filter.Product,
		SourceID:  filter.SourceID,
		RatingGTE: filter.RatingGTE,
		RatingLTE: filter.RatingLTE,
		Since:     filter.Since,
		Query:     filter.Query,
	})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.limit(r, "/records", s.cfg.RateLimit.CreateLimit, s.cfg.RateLimit.CreateWindow); err != nil {
		s.writeError(w, r, err)
		return
	}

	var in domain.RecordInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	record, err := in.ToRecord()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.deps.Records.Create(r.Context(), record)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusCreated, map[string]any{"ok": true, "item": created})
}

func (s *Server) handleBulkRecords(w http.ResponseWriter, r *http.Request) {
	if err := s.limit(r, "/records/bulk", s.cfg.RateLimit.CreateLimit, s.cfg.RateLimit.CreateWindow); err != nil {
		s.writeError(w, r, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	result, err := s.deps.Importer.Import(r.Context(), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = domain.Invalid("request body too large")
		}
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"ok":         true,
		"took_lines": result.TookLines,
		"inserted":   result.Inserted,
		"errors":     result.Errors,
	})
}

func recordID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.Invalid("bad id")
	}
	return id, nil
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.deps.Records.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "item": record})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.limit(r, "/records/"+id.String(), s.cfg.RateLimit.DeleteLimit, s.cfg.RateLimit.DeleteWindow); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Records.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "deleted": id})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.deps.Sources.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "count": len(sources), "items": sources})
}
