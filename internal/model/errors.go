package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrSpawn is returned when a process could not be started at all.
	ErrSpawn = errors.New("could not spawn process")
	// ErrUploadExhausted is returned when an artifact upload failed on every attempt.
	ErrUploadExhausted = errors.New("artifact upload retries exhausted")
	// ErrStageFailed is returned by the CLI when a stage finished with a failed outcome.
	ErrStageFailed = errors.New("stage failed")
)
