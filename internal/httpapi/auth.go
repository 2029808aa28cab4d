package httpapi

import (
	"crypto/subtle"
	"net"
	"net/http"
	"regexp"
	"time"

	"pullview/internal/domain"
)

var bearerPrefix = regexp.MustCompile(`(?i)^Bearer\s+`)

// bearerToken returns the credential of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	loc := bearerPrefix.FindStringIndex(auth)
	if loc == nil {
		return ""
	}
	return auth[loc[1]:]
}

func tokenMatches(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requireAPIToken guards write endpoints. With no token configured every write is refused.
func (s *Server) requireAPIToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatches(bearerToken(r), s.cfg.Auth.APIToken) {
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cronAuthorized accepts the cron token as a bearer header or as ?token=.
func (s *Server) cronAuthorized(r *http.Request) bool {
	want := s.cfg.Auth.CronToken
	return tokenMatches(bearerToken(r), want) || tokenMatches(r.URL.Query().Get("token"), want)
}

// requireCronToken guards the batch runner and diagnostics in every environment.
func (s *Server) requireCronToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cronAuthorized(r) {
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireIngestToken guards single-source ingestion outside local deployments, and
// only when a cron token is configured.
func (s *Server) requireIngestToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gated := !s.cfg.Server.IsLocal() && s.cfg.Auth.CronToken != ""
		if gated && !s.cronAuthorized(r) {
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the caller address. RealIP has already applied forwarding headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}
	return r.RemoteAddr
}

// clientKey scopes a rate limit bucket to the caller's token, address and route.
func clientKey(r *http.Request, scope string) string {
	token := bearerToken(r)
	if token == "" {
		token = "anon"
	}
	return token + ":" + clientIP(r) + ":" + r.Method + ":" + scope
}

// limit charges one hit against the bucket for scope and returns a RateLimitError
// when the cap is exceeded.
func (s *Server) limit(r *http.Request, scope string, max int, window time.Duration) error {
	if s.deps.Limiter == nil {
		return nil
	}
	d, err := s.deps.Limiter.Allow(r.Context(), clientKey(r, scope), max, window)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &domain.RateLimitError{RetryAfter: d.RetryAfter}
	}
	return nil
}
