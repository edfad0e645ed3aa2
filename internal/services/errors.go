package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Actor is the authenticated caller performing an operation.
type Actor struct {
	UserID uint
	Email  string
	IP     string
}

// rolledBack logs transactions that failed for reasons other than bad input,
// missing rows or ownership, and returns err unchanged.
func rolledBack(lg *zap.SugaredLogger, op string, err error) error {
	if err == nil || errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		return err
	}
	lg.Warnw("transaction rolled back", "op", op, "error", err)
	return err
}
