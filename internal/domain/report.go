package domain

import "time"

// DateLayout is the wire format of Report.WeekStart.
const DateLayout = "2006-01-02"

type Report struct {
	ID        int64     `db:"id"`
	WeekStart time.Time `db:"week_start"`
	Title     string    `db:"title"`
	Body      *string   `db:"body"`
	CreatedAt time.Time `db:"created_at"`
}

// ReportPatch holds the fields of a partial report update. A nil field is left as is;
// ClearBody sets the body to NULL.
type ReportPatch struct {
	Title     *string
	Body      *string
	ClearBody bool
	WeekStart *time.Time
}

// Empty reports whether the patch changes nothing.
func (p ReportPatch) Empty() bool {
	return p.Title == nil && p.Body == nil && !p.ClearBody && p.WeekStart == nil
}

// WeekMonday returns the Monday (UTC, midnight) of the ISO week containing t.
func WeekMonday(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// ReportSortColumns are the columns a report listing may be ordered by.
var ReportSortColumns = map[string]bool{
	"week_start": true,
	"created_at": true,
	"id":         true,
	"title":      true,
}

// ReportQuery selects one page of reports. Sort must be one of ReportSortColumns
// and Order either "asc" or "desc".
type ReportQuery struct {
	Limit  int
	Offset int
	Sort   string
	Order  string
}
