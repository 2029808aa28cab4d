package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"pullview/internal/domain"
)

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

// FindOrCreate returns the source registered for (kind, url), creating it when absent.
// The lookup and the insert are separate statements: two concurrent callers for an
// unseen origin can both insert. There is no unique constraint on (kind, url).
func (s *SourceStore) FindOrCreate(ctx context.Context, kind, url, name string) (uuid.UUID, bool, error) {
	exec := GetExecutor(ctx, s.db)

	var id uuid.UUID
	err := sqlx.GetContext(ctx, exec, &id,
		`SELECT id FROM review_sources WHERE kind = $1 AND url = $2 LIMIT 1`,
		kind, url,
	)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("lookup source: %w", err)
	}

	err = sqlx.GetContext(ctx, exec, &id,
		`INSERT INTO review_sources (name, kind, url) VALUES ($1, $2, $3) RETURNING id`,
		name, kind, url,
	)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert source: %w", err)
	}
	return id, true, nil
}

// ListRecent returns up to limit sources of the given kind, newest first. Rows without
// a kind tag are matched by urlPattern (ILIKE).
func (s *SourceStore) ListRecent(ctx context.Context, kind, urlPattern string, limit int) ([]domain.Source, error) {
	query := `
		SELECT id, name, kind, url, created_at
		FROM review_sources
		WHERE kind = $1 OR url ILIKE $2
		ORDER BY created_at DESC
		LIMIT $3`

	var sources []domain.Source
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query, kind, urlPattern, limit); err != nil {
		return nil, fmt.Errorf("list recent sources: %w", err)
	}
	return sources, nil
}

func (s *SourceStore) List(ctx context.Context) ([]domain.Source, error) {
	query := `
		SELECT id, name, kind, url, created_at
		FROM review_sources
		ORDER BY created_at DESC`

	var sources []domain.Source
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}
