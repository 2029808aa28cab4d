package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"pullview/internal/domain"
)

const recordColumns = `id, source_id, ext_id, author, title, body, rating,
	created_at, harvested_at, url, lang, product, tags`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type RecordStore struct {
	db *sqlx.DB
}

func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Upsert inserts the record or, when (source_id, ext_id) already exists, refreshes its
// author, body, created_at, url and lang and bumps harvested_at. Title, rating, product
// and tags are only written on insert. The returned flag is true when a new row was
// created: the candidate id is generated here and compared with the id that comes back.
func (s *RecordStore) Upsert(ctx context.Context, record *domain.Record) (bool, error) {
	query := `
		INSERT INTO reviews (
			id, source_id, ext_id, author, title, body, rating,
			created_at, url, lang, product, tags
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb
		)
		ON CONFLICT (source_id, ext_id) DO UPDATE SET
			author = EXCLUDED.author,
			body = EXCLUDED.body,
			created_at = EXCLUDED.created_at,
			url = EXCLUDED.url,
			lang = EXCLUDED.lang,
			harvested_at = now()
		RETURNING id, harvested_at`

	candidate := uuid.New()

	row := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		candidate,
		record.SourceID,
		record.ExternalID,
		record.Author,
		record.Title,
		record.Body,
		record.Rating,
		record.CreatedAt,
		record.URL,
		record.Lang,
		record.Product,
		tagsParam(record.Tags),
	)
	if err := row.Scan(&record.ID, &record.HarvestedAt); err != nil {
		return false, classify(err)
	}

	return record.ID == candidate, nil
}

// Create inserts a new record and returns the stored row. A duplicate
// (source_id, ext_id) is reported as a validation error.
func (s *RecordStore) Create(ctx context.Context, record *domain.Record) (*domain.Record, error) {
	query := `
		INSERT INTO reviews (
			source_id, ext_id, author, title, body, rating,
			created_at, url, lang, product, tags
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb
		)
		RETURNING ` + recordColumns

	var created domain.Record
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &created, query,
		record.SourceID,
		record.ExternalID,
		record.Author,
		record.Title,
		record.Body,
		record.Rating,
		record.CreatedAt,
		record.URL,
		record.Lang,
		record.Product,
		tagsParam(record.Tags),
	)
	if err != nil {
		return nil, classify(err)
	}
	return &created, nil
}

// InsertIgnore inserts the record unless (source_id, ext_id) already exists.
// It reports whether a row was written.
func (s *RecordStore) InsertIgnore(ctx context.Context, record *domain.Record) (bool, error) {
	query := `
		INSERT INTO reviews (
			source_id, ext_id, author, title, body, rating,
			created_at, url, lang, product, tags
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb
		)
		ON CONFLICT (source_id, ext_id) DO NOTHING`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		record.SourceID,
		record.ExternalID,
		record.Author,
		record.Title,
		record.Body,
		record.Rating,
		record.CreatedAt,
		record.URL,
		record.Lang,
		record.Product,
		tagsParam(record.Tags),
	)
	if err != nil {
		return false, classify(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RecordStore) Get(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	var record domain.Record
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &record,
		`SELECT `+recordColumns+` FROM reviews WHERE id = $1`, id,
	)
	if err != nil {
		return nil, classify(err)
	}
	return &record, nil
}

func (s *RecordStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns records matching the filter, newest origin timestamp first.
func (s *RecordStore) List(ctx context.Context, filter domain.RecordFilter) ([]domain.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Product != nil {
		where = append(where, "product = "+arg(*filter.Product))
	}
	if filter.SourceID != nil {
		where = append(where, "source_id = "+arg(*filter.SourceID))
	}
	if filter.RatingGTE != nil {
		where = append(where, "rating >= "+arg(*filter.RatingGTE))
	}
	if filter.RatingLTE != nil {
		where = append(where, "rating <= "+arg(*filter.RatingLTE))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= "+arg(*filter.Since))
	}
	if filter.Query != nil {
		p := arg("%" + likeEscaper.Replace(*filter.Query) + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %[1]s OR body ILIKE %[1]s OR author ILIKE %[1]s)", p))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(recordColumns)
	sb.WriteString(" FROM reviews")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC NULLS LAST, id")
	sb.WriteString(" LIMIT " + arg(filter.Limit))
	sb.WriteString(" OFFSET " + arg(filter.Offset))

	records := []domain.Record{}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &records, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

func tagsParam(tags types.JSONText) string {
	if len(tags) == 0 {
		return "{}"
	}
	return string(tags)
}
