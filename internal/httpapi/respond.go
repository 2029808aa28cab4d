package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"pullview/internal/domain"
)

type errorBody struct {
	OK                bool   `json:"ok"`
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// wantsPretty reports whether ?pretty is present and not "false" or "0".
func wantsPretty(r *http.Request) bool {
	q := r.URL.Query()
	if !q.Has("pretty") {
		return false
	}
	v := q.Get("pretty")
	return v != "false" && v != "0"
}

// writeJSON encodes v followed by a newline, indented when the client asked for it.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if wantsPretty(r) {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps err onto a status code. Store and unknown failures are logged in
// full and reported with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		cooldown   *domain.CooldownError
		limited    *domain.RateLimitError
		upstream   *domain.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		s.writeJSON(w, r, http.StatusBadRequest, errorBody{Error: validation.Msg})
	case errors.Is(err, domain.ErrUnauthorized):
		s.writeJSON(w, r, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, domain.ErrUnknownKind):
		s.writeJSON(w, r, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, r, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.As(err, &limited):
		secs := limited.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.writeJSON(w, r, http.StatusTooManyRequests, errorBody{Error: "rate_limited", RetryAfterSeconds: secs})
	case errors.As(err, &cooldown):
		secs := cooldown.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.writeJSON(w, r, http.StatusTooManyRequests, errorBody{Error: "cooldown_active", RetryAfterSeconds: secs})
	case errors.As(err, &upstream):
		s.logger.Warn("upstream failure", "platform", upstream.Platform, "status", upstream.Status, "error", err)
		s.writeJSON(w, r, http.StatusInternalServerError, errorBody{Error: upstream.Error()})
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		s.writeJSON(w, r, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// decodeJSON reads a single JSON value from the request body.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Invalid("request body too large")
		}
		return domain.Invalid("invalid JSON body")
	}
	return nil
}
