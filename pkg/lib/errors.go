package lib

import (
	"errors"

	"github.com/slok/stager/internal/model"
)

var (
	// ErrNotFound is returned when a deadline or checkpoint does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when the options are not valid.
	ErrNotValid = errors.New("not valid")
	// ErrUploadExhausted is returned when a checkpoint upload failed on every attempt.
	ErrUploadExhausted = errors.New("checkpoint upload retries exhausted")
)

// mapError translates internal sentinel errors into the public ones, keeping
// the original message and chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	case errors.Is(err, model.ErrUploadExhausted):
		return joinErrors(err, ErrUploadExhausted)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
