package store

import (
	"errors"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = apperr.ErrNotFound
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = apperr.ErrConflict
)

const uniqueViolation = "23505"

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}
