package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pullview/internal/domain"
	"pullview/internal/source"
)

const (
	Kind = domain.KindReddit

	// MaxLimit is the largest comment count requested in one call.
	MaxLimit = 100

	siteURL     = "https://www.reddit.com"
	commentKind = "t1"
)

// Config holds Reddit source configuration.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Source reads the public JSON rendering of a Reddit thread. No credentials are used.
type Source struct {
	client    source.HTTPClient
	baseURL   string
	userAgent string
	logger    *slog.Logger
}

func New(cfg Config, client source.HTTPClient, logger *slog.Logger) *Source {
	if client == nil {
		client = source.NewHTTPClient(cfg.Timeout)
	}
	return &Source{
		client:    client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		logger:    logger.With("platform", Kind),
	}
}

func (s *Source) Kind() string {
	return Kind
}

func (s *Source) OriginURL(postID string) string {
	return siteURL + "/comments/" + url.PathEscape(postID) + "/"
}

func (s *Source) DisplayName(postID string) string {
	return "Reddit: " + postID
}

func (s *Source) LegacyURLPattern() string {
	return "%reddit.com/%comments/%"
}

// ExtractID returns the post id following the "comments" path segment of a thread URL.
func (s *Source) ExtractID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}

	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	for i, p := range parts {
		if p == "comments" && i+1 < len(parts) {
			return parts[i+1], true
		}
	}
	return "", false
}

// Fetch requests up to limit top-level comments of postID in a single call.
func (s *Source) Fetch(ctx context.Context, postID string, limit int) ([]domain.RawItem, error) {
	limit = max(1, min(MaxLimit, limit))

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("depth", "1")
	params.Set("raw_json", "1")
	endpoint := fmt.Sprintf("%s/comments/%s.json?%s", s.baseURL, url.PathEscape(postID), params.Encode())

	var raw json.RawMessage
	if err := source.GetJSON(ctx, s.client, Kind, endpoint, s.userAgent, &raw); err != nil {
		return nil, err
	}

	// A thread payload is an array of listings.
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
		s.logger.Warn("unexpected payload shape", "post_id", postID)
		return nil, &domain.UpstreamError{Platform: Kind, Body: "unexpected payload shape"}
	}

	var listings []Listing
	if err := json.Unmarshal(raw, &listings); err != nil {
		return nil, &domain.UpstreamError{Platform: Kind, Body: "decode listings: " + err.Error()}
	}

	var children []Thing
	if len(listings) > 1 {
		children = listings[1].Data.Children
	}

	items := s.transform(children)

	s.logger.Debug("fetched comments",
		"post_id", postID,
		"children", len(children),
		"comments", len(items),
	)

	return items, nil
}

func (s *Source) transform(children []Thing) []domain.RawItem {
	items := make([]domain.RawItem, 0, len(children))

	for _, c := range children {
		if c.Kind != commentKind || c.Data.Author == "" || c.Data.ID == "" {
			continue
		}

		author := c.Data.Author
		item := domain.RawItem{
			ExternalID: c.Data.ID,
			Author:     &author,
		}

		if c.Data.Body != "" {
			body := c.Data.Body
			item.Body = &body
		}

		if c.Data.CreatedUTC > 0 {
			sec, frac := math.Modf(c.Data.CreatedUTC)
			createdAt := time.Unix(int64(sec), int64(frac*1e9)).UTC()
			item.PublishedAt = &createdAt
		}

		if c.Data.Permalink != "" {
			permalink := siteURL + c.Data.Permalink
			item.Permalink = &permalink
		}

		items = append(items, item)
	}

	return items
}
