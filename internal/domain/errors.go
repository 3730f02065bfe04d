package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotModified       = errors.New("not modified")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrUnavailable       = errors.New("source unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)
