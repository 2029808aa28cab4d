package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pullview/internal/domain"
)

type StatsStore struct {
	db *sqlx.DB
}

func NewStatsStore(db *sqlx.DB) *StatsStore {
	return &StatsStore{db: db}
}

// Snapshot reports table sizes and the three most recent sources and records.
func (s *StatsStore) Snapshot(ctx context.Context) (*domain.StoreSnapshot, error) {
	exec := GetExecutor(ctx, s.db)

	var snap domain.StoreSnapshot
	err := sqlx.GetContext(ctx, exec, &snap.Counts, `
		SELECT
			(SELECT COUNT(*) FROM review_sources) AS sources,
			(SELECT COUNT(*) FROM reviews) AS records,
			(SELECT COUNT(*) FROM reports) AS reports`)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	snap.RecentSources = []domain.Source{}
	err = sqlx.SelectContext(ctx, exec, &snap.RecentSources, `
		SELECT id, name, kind, url, created_at
		FROM review_sources
		ORDER BY created_at DESC
		LIMIT 3`)
	if err != nil {
		return nil, fmt.Errorf("sample sources: %w", err)
	}

	snap.RecentRecords = []domain.Record{}
	err = sqlx.SelectContext(ctx, exec, &snap.RecentRecords, `
		SELECT `+recordColumns+`
		FROM reviews
		ORDER BY harvested_at DESC
		LIMIT 3`)
	if err != nil {
		return nil, fmt.Errorf("sample records: %w", err)
	}

	return &snap, nil
}
