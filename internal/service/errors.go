package service

import (
	"errors"
	"fmt"

	"taskplanner/internal/repository"
)

var (
	// ErrNotFound covers both missing records and records of another owner.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOperation covers validation failures.
	ErrInvalidOperation = errors.New("invalid operation")
)

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidOperation}, args...)...)
}

// lookupErr turns a repository miss into ErrNotFound for the named entity.
func lookupErr(err error, entity string, id uint) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundf("%s %d", entity, id)
	}
	return err
}
