package domain

import "errors"

// Sentinel errors shared by the scheduler and its collaborators.
// Check with errors.Is; the wrapped message carries the detail.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("flashcard not found")
	ErrStorage      = errors.New("storage failure")
	ErrConflict     = errors.New("flashcard was modified concurrently")
)
