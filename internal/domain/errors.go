package domain

import "errors"

var (
	// ErrFetch wraps failed reads of categories, questions or attempt history.
	ErrFetch = errors.New("fetch failed")
	// ErrWrite wraps failed attempt or point writes.
	ErrWrite = errors.New("write failed")
	// ErrAuthRequired is returned when an operation needs a user id and has none.
	ErrAuthRequired = errors.New("authentication required")

	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrInvalidTransition is returned for an action the current session state does not allow.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrQuizNotFound indicates an authored quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrOptionNotFound indicates a submitted option label is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidName is returned for a user id, category or question id that is not
	// a single store path segment.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidQuestion indicates authored content failed validation.
	ErrInvalidQuestion = errors.New("invalid question")
)
