package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrDatasetNotReady        = errors.New("dataset is not ready")
	ErrInvalidFeedback        = errors.New("invalid feedback value")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
