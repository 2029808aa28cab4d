package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pullview/internal/domain"
)

var (
	reportLimit  = intParam{name: "limit", def: 20, min: 1, max: 100}
	reportOffset = intParam{name: "offset", def: 0, min: 0, max: 1 << 30}
)

// reportView is the wire shape of a report: string id and a plain date.
type reportView struct {
	ID        string    `json:"id"`
	WeekStart string    `json:"week_start"`
	Title     string    `json:"title"`
	Body      *string   `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func newReportView(r *domain.Report) reportView {
	return reportView{
		ID:        strconv.FormatInt(r.ID, 10),
		WeekStart: r.WeekStart.UTC().Format(domain.DateLayout),
		Title:     r.Title,
		Body:      r.Body,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type createReportInput struct {
	Title     string  `json:"title"`
	Body      *string `json:"body"`
	WeekStart string  `json:"week_start"`
}

type updateReportInput struct {
	Title     *string         `json:"title"`
	Body      json.RawMessage `json:"body"`
	WeekStart *string         `json:"week_start"`
}

func parseWeekStart(v string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, v)
	if err != nil {
		return time.Time{}, domain.Invalid("week_start must be YYYY-MM-DD")
	}
	return t, nil
}

func reportID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("bad id")
	}
	return id, nil
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := domain.ReportQuery{
		Limit:  reportLimit.read(r),
		Offset: reportOffset.read(r),
		Sort:   strings.ToLower(firstParam(r, "sort")),
		Order:  strings.ToLower(firstParam(r, "order")),
	}
	if q.Sort == "" {
		q.Sort = "week_start"
	}
	if q.Order == "" {
		q.Order = "desc"
	}
	if !domain.ReportSortColumns[q.Sort] {
		s.writeError(w, r, domain.Invalid("bad sort; use week_start|created_at|id|title"))
		return
	}
	if q.Order != "asc" && q.Order != "desc" {
		s.writeError(w, r, domain.Invalid("bad order; use asc|desc"))
		return
	}

	reports, total, err := s.deps.Reports.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]reportView, 0, len(reports))
	for i := range reports {
		items = append(items, newReportView(&reports[i]))
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"ok":     true,
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"sort":   q.Sort,
		"order":  q.Order,
		"items":  items,
	})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.deps.Reports.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "item": newReportView(report)})
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	if err := s.limit(r, "/reports", s.cfg.RateLimit.CreateLimit, s.cfg.RateLimit.CreateWindow); err != nil {
		s.writeError(w, r, err)
		return
	}

	var in createReportInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		s.writeError(w, r, domain.Invalid("field 'title' (string) is required"))
		return
	}

	weekStart := domain.WeekMonday(s.now())
	if v := strings.TrimSpace(in.WeekStart); v != "" {
		t, err := parseWeekStart(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		weekStart = t
	}

	report, err := s.deps.Reports.Create(r.Context(), weekStart, title, in.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusCreated, map[string]any{"ok": true, "item": newReportView(report)})
}

func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var in updateReportInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	var patch domain.ReportPatch
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			s.writeError(w, r, domain.Invalid("title cannot be empty"))
			return
		}
		patch.Title = &title
	}
	if raw := bytes.TrimSpace(in.Body); len(raw) > 0 {
		if bytes.Equal(raw, []byte("null")) {
			patch.ClearBody = true
		} else {
			var body string
			if err := json.Unmarshal(raw, &body); err != nil {
				s.writeError(w, r, domain.Invalid("body must be a string or null"))
				return
			}
			patch.Body = &body
		}
	}
	if in.WeekStart != nil {
		t, err := parseWeekStart(strings.TrimSpace(*in.WeekStart))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		patch.WeekStart = &t
	}
	if patch.Empty() {
		s.writeError(w, r, domain.Invalid("no fields to update"))
		return
	}

	report, err := s.deps.Reports.Update(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "item": newReportView(report)})
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.limit(r, "/reports/"+strconv.FormatInt(id, 10), s.cfg.RateLimit.DeleteLimit, s.cfg.RateLimit.DeleteWindow); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Reports.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "deleted": id})
}
