package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type ThrottleStore struct {
	db *sqlx.DB
}

func NewThrottleStore(db *sqlx.DB) *ThrottleStore {
	return &ThrottleStore{db: db}
}

type throttleRow struct {
	Allowed    bool    `db:"allowed"`
	RetryAfter float64 `db:"retry_after"`
}

// CheckAndArm lets one caller per cooldown window through for key. The arm is a single
// upsert that only moves next_allowed_at forward when the previous window has elapsed,
// so two concurrent callers cannot both be allowed. A zero cooldown disables the gate.
func (s *ThrottleStore) CheckAndArm(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error) {
	if cooldown <= 0 {
		return true, 0, nil
	}

	query := `
		WITH armed AS (
			INSERT INTO job_throttle (key, next_allowed_at)
			VALUES ($1, now() + make_interval(secs => $2::float8))
			ON CONFLICT (key) DO UPDATE
				SET next_allowed_at = EXCLUDED.next_allowed_at
				WHERE job_throttle.next_allowed_at <= now()
			RETURNING next_allowed_at
		)
		SELECT true AS allowed, 0::float8 AS retry_after FROM armed
		UNION ALL
		SELECT false AS allowed, EXTRACT(EPOCH FROM (t.next_allowed_at - now()))::float8 AS retry_after
		FROM job_throttle t
		WHERE t.key = $1 AND NOT EXISTS (SELECT 1 FROM armed)`

	var rows []throttleRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, key, cooldown.Seconds()); err != nil {
		return false, 0, fmt.Errorf("arm throttle: %w", err)
	}

	// No row at all means a concurrent caller armed the key after our snapshot.
	if len(rows) == 0 {
		return false, cooldown, nil
	}
	if rows[0].Allowed {
		return true, 0, nil
	}
	return false, time.Duration(rows[0].RetryAfter * float64(time.Second)), nil
}
