package scraper

import (
	"errors"
	"fmt"

	"apartments-bot/fetcher"
)

var (
	// ErrGridNotFound means the catalog did not render. It aborts the run.
	ErrGridNotFound = errors.New("catalog grid not found")

	ErrProjectIdentity = errors.New("project name or link unreadable")
	ErrDialogTimeout   = errors.New("project dialog did not open")
	ErrNoItemCards     = errors.New("no item cards in project dialog")
	ErrDialogStuck     = errors.New("previous project dialog is still open")
	ErrClickTimeout    = errors.New("element not clickable")

	ErrFieldMissing = errors.New("required field missing")
)

// FieldError reports a required item field that could not be read
type FieldError struct {
	Field  string
	Status fetcher.Status
	Err    error // set when the read itself failed
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("field %s: %s", e.Field, e.Status)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrFieldMissing
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
