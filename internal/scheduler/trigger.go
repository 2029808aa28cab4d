package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pullview/internal/domain"
	"pullview/internal/source"
)

type TriggerConfig struct {
	BaseURL   string
	Token     string
	Platforms []string
	Limit     int
	Pages     int
}

// BatchTrigger asks a running API server to execute the batch runner of every
// configured platform.
type BatchTrigger struct {
	config TriggerConfig
	client source.HTTPClient
	logger *slog.Logger
}

func NewBatchTrigger(cfg TriggerConfig, client source.HTTPClient, logger *slog.Logger) *BatchTrigger {
	return &BatchTrigger{
		config: cfg,
		client: client,
		logger: logger.With("component", "cron"),
	}
}

type runResponse struct {
	OK    bool                  `json:"ok"`
	Count int                   `json:"count"`
	Calls []domain.BatchOutcome `json:"calls"`
	Error string                `json:"error"`
}

// Run triggers each platform in turn. A failing platform does not stop the others;
// all failures are returned joined.
func (t *BatchTrigger) Run(ctx context.Context) error {
	var errs []error
	for _, platform := range t.config.Platforms {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := t.trigger(ctx, platform); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", platform, err))
		}
	}
	return errors.Join(errs...)
}

func (t *BatchTrigger) runURL(platform string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(t.config.Limit))
	q.Set("pages", strconv.Itoa(t.config.Pages))
	return strings.TrimRight(t.config.BaseURL, "/") + "/ingest/" + url.PathEscape(platform) + "/run?" + q.Encode()
}

func (t *BatchTrigger) trigger(ctx context.Context, platform string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.runURL(platform), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.config.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var out runResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("run rejected: HTTP %d %s", resp.StatusCode, out.Error)
	}

	failed := 0
	for _, call := range out.Calls {
		if !call.OK {
			failed++
			t.logger.Warn("source run failed", "platform", platform, "target", call.Target, "error", call.Error)
		}
	}
	t.logger.Info("batch run completed", "platform", platform, "sources", out.Count, "failed", failed)
	return nil
}
