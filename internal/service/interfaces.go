package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pullview/internal/domain"
)

type SourceStore interface {
	FindOrCreate(ctx context.Context, kind, url, name string) (uuid.UUID, bool, error)
	ListRecent(ctx context.Context, kind, urlPattern string, limit int) ([]domain.Source, error)
}

type RecordStore interface {
	Upsert(ctx context.Context, record *domain.Record) (bool, error)
	InsertIgnore(ctx context.Context, record *domain.Record) (bool, error)
}

type ThrottleStore interface {
	CheckAndArm(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	WithSavepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.RecordEvent) error
	Close() error
}

// Platform is an origin the service can harvest records from.
type Platform interface {
	Kind() string
	OriginURL(target string) string
	DisplayName(target string) string
	ExtractID(rawURL string) (string, bool)
	LegacyURLPattern() string
	Fetch(ctx context.Context, target string, budget int) ([]domain.RawItem, error)
}
