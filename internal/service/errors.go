package service

import "errors"

var (
	// ErrPersistence wraps failed relational writes. The caller gets a 500.
	ErrPersistence  = errors.New("persistence error")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
