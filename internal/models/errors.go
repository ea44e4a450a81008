package models

import "errors"

var (
	ErrValidation            = errors.New("validation error")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrSigningFailure        = errors.New("signing failure")
	ErrSubmissionFailure     = errors.New("submission failure")
	ErrObjectStateMismatch   = errors.New("object state mismatch")
	ErrNotFound              = errors.New("not found")
)
