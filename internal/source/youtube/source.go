package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pullview/internal/domain"
	"pullview/internal/source"
)

const (
	Kind = domain.KindYouTube

	// MaxPages caps the number of commentThreads pages fetched per call.
	MaxPages = 5
	pageSize = 100

	watchURL = "https://www.youtube.com/watch?v="
)

var ErrMissingAPIKey = errors.New("youtube api key is not configured")

// Config holds YouTube source configuration.
type Config struct {
	APIKey    string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Source fetches top-level comment threads of a video from the YouTube Data API.
type Source struct {
	client    source.HTTPClient
	apiKey    string
	baseURL   string
	userAgent string
	logger    *slog.Logger
}

// New creates a YouTube source. A nil client is replaced by one honoring cfg.Timeout.
func New(cfg Config, client source.HTTPClient, logger *slog.Logger) *Source {
	if client == nil {
		client = source.NewHTTPClient(cfg.Timeout)
	}
	return &Source{
		client:    client,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		logger:    logger.With("platform", Kind),
	}
}

func (s *Source) Kind() string {
	return Kind
}

func (s *Source) OriginURL(videoID string) string {
	return watchURL + url.QueryEscape(videoID)
}

func (s *Source) DisplayName(videoID string) string {
	return "YouTube: " + videoID
}

func (s *Source) LegacyURLPattern() string {
	return "%youtube.com/watch?v=%"
}

// ExtractID returns the video id of a watch URL (v query parameter), a youtu.be link,
// or a /shorts/<id>, /embed/<id> or /live/<id> path.
func (s *Source) ExtractID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}
	if v := u.Query().Get("v"); v != "" {
		return v, true
	}

	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if strings.EqualFold(u.Hostname(), "youtu.be") {
		if len(parts) == 1 {
			return parts[0], true
		}
		return "", false
	}
	if len(parts) >= 2 {
		switch parts[0] {
		case "shorts", "embed", "live":
			return parts[1], true
		}
	}
	return "", false
}

// Fetch pages through the comment threads of videoID, stopping after maxPages pages
// or when the API returns no continuation token.
func (s *Source) Fetch(ctx context.Context, videoID string, maxPages int) ([]domain.RawItem, error) {
	if s.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if maxPages < 1 {
		maxPages = 1
	}

	var threads []CommentThread
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		resp, err := s.fetchPage(ctx, videoID, pageToken)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		threads = append(threads, resp.Items...)

		s.logger.Debug("fetched page",
			"video_id", videoID,
			"page", page,
			"threads", len(resp.Items),
			"total", len(threads),
		)

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return s.transform(videoID, threads), nil
}

func (s *Source) fetchPage(ctx context.Context, videoID, pageToken string) (*CommentThreadsResponse, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("videoId", videoID)
	params.Set("maxResults", strconv.Itoa(pageSize))
	params.Set("textFormat", "plainText")
	params.Set("key", s.apiKey)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp CommentThreadsResponse
	if err := source.GetJSON(ctx, s.client, Kind, s.baseURL+"/commentThreads?"+params.Encode(), s.userAgent, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Source) transform(videoID string, threads []CommentThread) []domain.RawItem {
	items := make([]domain.RawItem, 0, len(threads))

	for _, t := range threads {
		c := t.Snippet.TopLevelComment
		if c == nil || c.Snippet == nil || c.ID == "" {
			continue
		}

		body := c.Snippet.TextDisplay
		if body == nil {
			body = c.Snippet.TextOriginal
		}

		vid := t.Snippet.VideoID
		if vid == "" {
			vid = videoID
		}
		permalink := s.OriginURL(vid) + "&lc=" + url.QueryEscape(c.ID)

		item := domain.RawItem{
			ExternalID: c.ID,
			Author:     c.Snippet.AuthorDisplayName,
			Body:       body,
			Permalink:  &permalink,
			Language:   c.Snippet.Language,
		}

		if c.Snippet.PublishedAt != "" {
			publishedAt, err := time.Parse(time.RFC3339, c.Snippet.PublishedAt)
			if err != nil {
				s.logger.Warn("failed to parse date",
					"external_id", c.ID,
					"date", c.Snippet.PublishedAt,
				)
			} else {
				publishedAt = publishedAt.UTC()
				item.PublishedAt = &publishedAt
			}
		}

		items = append(items, item)
	}

	return items
}
