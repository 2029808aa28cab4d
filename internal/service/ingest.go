package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"pullview/internal/config"
	"pullview/internal/domain"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

type IngestService struct {
	platforms map[string]Platform
	sources   SourceStore
	records   RecordStore
	throttle  ThrottleStore
	publisher Publisher
	logger    *slog.Logger
	config    config.IngestConfig
}

// NewIngestService wires the pipeline. publisher may be nil.
func NewIngestService(
	platforms []Platform,
	sources SourceStore,
	records RecordStore,
	throttle ThrottleStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.IngestConfig,
) *IngestService {
	byKind := make(map[string]Platform, len(platforms))
	for _, p := range platforms {
		byKind[p.Kind()] = p
	}
	return &IngestService{
		platforms: byKind,
		sources:   sources,
		records:   records,
		throttle:  throttle,
		publisher: publisher,
		logger:    logger.With("component", "ingest"),
		config:    cfg,
	}
}

// Platform returns the registered platform for kind.
func (s *IngestService) Platform(kind string) (Platform, error) {
	p, ok := s.platforms[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownKind, kind)
	}
	return p, nil
}

// ThrottleKey is the job_throttle key guarding one target of one platform.
func ThrottleKey(kind, target string) string {
	return "pull:" + kind + ":" + target
}

// Ingest runs the single-source pipeline: resolve the source row, pass the throttle,
// fetch from the origin and upsert every item. A dry run fetches but writes no records
// and no source row; it still arms the throttle.
func (s *IngestService) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	startTime := time.Now()

	p, err := s.Platform(req.Platform)
	if err != nil {
		return nil, err
	}
	if req.Target == "" {
		return nil, domain.Invalid("missing target id")
	}

	logger := s.logger.With("platform", req.Platform, "target", req.Target)

	originURL := req.OriginURL
	if originURL == "" {
		originURL = p.OriginURL(req.Target)
	}

	result := &domain.IngestResult{
		Platform: req.Platform,
		Target:   req.Target,
		DryRun:   req.DryRun,
	}

	var sourceID uuid.UUID
	if !req.DryRun {
		id, created, err := s.sources.FindOrCreate(ctx, p.Kind(), originURL, p.DisplayName(req.Target))
		if err != nil {
			return nil, fmt.Errorf("resolve source: %w", err)
		}
		if created {
			logger.Info("registered source", "source_id", id, "url", originURL)
		}
		sourceID = id
		result.SourceID = &id
	}

	key := ThrottleKey(p.Kind(), req.Target)
	allowed, retryAfter, err := s.throttle.CheckAndArm(ctx, key, req.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("check throttle: %w", err)
	}
	if !allowed {
		logger.Info("ingestion throttled", "retry_after", retryAfter)
		return nil, &domain.CooldownError{Key: key, RetryAfter: retryAfter}
	}

	items, err := p.Fetch(ctx, req.Target, req.Budget)
	if err != nil {
		return nil, fmt.Errorf("fetch %s items: %w", p.Kind(), err)
	}

	logger.Info("fetched items", "count", len(items), "dry", req.DryRun)

	if req.DryRun {
		result.Stats.Total = len(items)
		n := min(len(items), s.config.PreviewSize)
		result.Preview = items[:n]
		result.Duration = time.Since(startTime)
		return result, nil
	}

	result.Stats = s.upsert(ctx, p, sourceID, originURL, items)
	result.Duration = time.Since(startTime)

	logger.Info("ingestion completed",
		"total", result.Stats.Total,
		"inserted", result.Stats.Inserted,
		"updated", result.Stats.Updated,
		"failed", result.Stats.Failed,
		"published", result.Stats.Published,
		"duration", result.Duration,
	)

	return result, nil
}

// upsert writes every item as its own statement. A failing item is counted and
// skipped; the rest of the batch proceeds.
func (s *IngestService) upsert(ctx context.Context, p Platform, sourceID uuid.UUID, originURL string, items []domain.RawItem) domain.UpsertStats {
	stats := domain.UpsertStats{Total: len(items)}
	tags := types.JSONText(fmt.Sprintf(`{"source":%q}`, p.Kind()))

	for i := range items {
		item := &items[i]
		if item.ExternalID == "" {
			stats.Failed++
			s.logger.Warn("skipping item without id", "platform", p.Kind(), "index", i)
			continue
		}

		url := originURL
		if item.Permalink != nil && *item.Permalink != "" {
			url = *item.Permalink
		}

		record := &domain.Record{
			SourceID:   sourceID,
			ExternalID: item.ExternalID,
			Author:     item.Author,
			Body:       item.Body,
			CreatedAt:  item.PublishedAt,
			URL:        &url,
			Lang:       item.Language,
			Tags:       tags,
		}

		inserted, err := s.records.Upsert(ctx, record)
		if err != nil {
			stats.Failed++
			s.logger.Error("failed to upsert record",
				"platform", p.Kind(),
				"ext_id", item.ExternalID,
				"error", err,
			)
			continue
		}

		action := ActionUpdate
		if inserted {
			stats.Inserted++
			action = ActionCreate
		} else {
			stats.Updated++
		}

		if s.publisher != nil {
			event := &domain.RecordEvent{
				Action:    action,
				Platform:  p.Kind(),
				Record:    *record,
				Timestamp: time.Now().UTC(),
			}
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Warn("failed to publish record event", "record_id", record.ID, "error", err)
			} else {
				stats.Published++
			}
		}
	}

	return stats
}

// RunBatch re-harvests the most recently registered sources of a platform. Each source
// runs the same path as Ingest with the batch cooldown; failures are reported per
// source in selection order.
func (s *IngestService) RunBatch(ctx context.Context, req domain.BatchRequest) ([]domain.BatchOutcome, error) {
	p, err := s.Platform(req.Platform)
	if err != nil {
		return nil, err
	}

	sources, err := s.sources.ListRecent(ctx, p.Kind(), p.LegacyURLPattern(), req.MaxSources)
	if err != nil {
		return nil, fmt.Errorf("list recent sources: %w", err)
	}

	s.logger.Info("starting batch run",
		"platform", p.Kind(),
		"sources", len(sources),
		"budget", req.Budget,
		"dry", req.DryRun,
	)

	outcomes := make([]domain.BatchOutcome, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		outcome := domain.BatchOutcome{SourceID: src.ID}

		var rawURL string
		if src.URL != nil {
			rawURL = *src.URL
		}
		target, ok := p.ExtractID(rawURL)
		if !ok {
			outcome.Error = "no id"
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Target = target

		res, err := s.Ingest(ctx, domain.IngestRequest{
			Platform:  p.Kind(),
			Target:    target,
			OriginURL: rawURL,
			Budget:    req.Budget,
			Cooldown:  s.config.BatchCooldown,
			DryRun:    req.DryRun,
		})
		if err != nil {
			s.logger.Warn("batch source failed", "platform", p.Kind(), "source_id", src.ID, "error", err)
			outcome.Error = outcomeError(err)
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.OK = true
		outcome.Stats = &res.Stats
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// outcomeError keeps store failures out of batch responses.
func outcomeError(err error) string {
	var (
		cooldown   *domain.CooldownError
		upstream   *domain.UpstreamError
		validation *domain.ValidationError
	)
	switch {
	case errors.As(err, &cooldown):
		return cooldown.Error()
	case errors.As(err, &upstream):
		return upstream.Error()
	case errors.As(err, &validation):
		return validation.Error()
	default:
		return "internal error"
	}
}
