package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// intParam describes an integer query parameter with a default and inclusive bounds.
type intParam struct {
	name     string
	def      int
	min, max int
}

// read parses the parameter. Missing or unparsable values fall back to the default;
// the result is always clamped into [min, max], including values beyond the int range.
func (p intParam) read(r *http.Request) int {
	if raw := strings.TrimSpace(r.URL.Query().Get(p.name)); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if (err == nil || errors.Is(err, strconv.ErrRange)) && !math.IsNaN(f) {
			return int(math.Max(float64(p.min), math.Min(float64(p.max), f)))
		}
	}
	return max(p.min, min(p.max, p.def))
}

// flagParam reads a boolean query flag: "1" and "true" enable it.
func flagParam(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// firstParam returns the first non-empty value among the named query parameters.
func firstParam(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
