package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"pullview/internal/domain"
)

const reportColumns = `id, week_start, title, body, created_at`

type ReportStore struct {
	db *sqlx.DB
}

func NewReportStore(db *sqlx.DB) *ReportStore {
	return &ReportStore{db: db}
}

type reportRow struct {
	domain.Report
	Total int `db:"total"`
}

// List returns one page of reports along with the total row count. Ties on the sort
// column are broken by id, newest first.
func (s *ReportStore) List(ctx context.Context, q domain.ReportQuery) ([]domain.Report, int, error) {
	sort, order := q.Sort, strings.ToUpper(q.Order)
	if !domain.ReportSortColumns[sort] {
		return nil, 0, domain.Invalid("bad sort; use week_start|created_at|id|title")
	}
	if order != "ASC" && order != "DESC" {
		return nil, 0, domain.Invalid("bad order; use asc|desc")
	}

	query := `
		SELECT ` + reportColumns + `, COUNT(*) OVER() AS total
		FROM reports
		ORDER BY ` + sort + ` ` + order + `, id DESC
		LIMIT $1 OFFSET $2`

	var rows []reportRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, q.Limit, q.Offset); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}

	reports := make([]domain.Report, 0, len(rows))
	total := 0
	for _, r := range rows {
		reports = append(reports, r.Report)
		total = r.Total
	}
	return reports, total, nil
}

func (s *ReportStore) Get(ctx context.Context, id int64) (*domain.Report, error) {
	var report domain.Report
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &report,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id,
	)
	if err != nil {
		return nil, classify(err)
	}
	return &report, nil
}

func (s *ReportStore) Create(ctx context.Context, weekStart time.Time, title string, body *string) (*domain.Report, error) {
	var report domain.Report
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &report, `
		INSERT INTO reports (week_start, title, body)
		VALUES ($1::date, $2, $3)
		RETURNING `+reportColumns,
		weekStart.Format(domain.DateLayout), title, body,
	)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return &report, nil
}

// Update applies a partial update and returns the stored row.
func (s *ReportStore) Update(ctx context.Context, id int64, patch domain.ReportPatch) (*domain.Report, error) {
	var (
		sets []string
		args []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if patch.Title != nil {
		sets = append(sets, "title = "+arg(*patch.Title))
	}
	switch {
	case patch.ClearBody:
		sets = append(sets, "body = NULL")
	case patch.Body != nil:
		sets = append(sets, "body = "+arg(*patch.Body))
	}
	if patch.WeekStart != nil {
		sets = append(sets, "week_start = "+arg(patch.WeekStart.Format(domain.DateLayout))+"::date")
	}
	if len(sets) == 0 {
		return nil, domain.Invalid("no fields to update")
	}

	query := `UPDATE reports SET ` + strings.Join(sets, ", ") +
		` WHERE id = ` + arg(id) +
		` RETURNING ` + reportColumns

	var report domain.Report
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &report, query, args...); err != nil {
		return nil, classify(err)
	}
	return &report, nil
}

func (s *ReportStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
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
