package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"pullview/internal/domain"
)

const (
	codeUniqueViolation     pq.ErrorCode = "23505"
	codeForeignKeyViolation pq.ErrorCode = "23503"
	codeInvalidText         pq.ErrorCode = "22P02"
	codeDatetimeFormat      pq.ErrorCode = "22007"
	codeDatetimeOverflow    pq.ErrorCode = "22008"
)

// classify turns constraint and input errors raised by Postgres into validation
// errors. Everything else is returned unchanged and surfaces as a store error.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case codeUniqueViolation:
		return domain.Invalid("record already exists for this source_id and external_id")
	case codeForeignKeyViolation:
		return domain.Invalid("unknown source_id")
	case codeInvalidText, codeDatetimeFormat, codeDatetimeOverflow:
		return domain.Invalid("invalid value: %s", pqErr.Message)
	}
	return err
}
