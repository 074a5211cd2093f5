package data

import "errors"

// Shared sentinel errors for job stores.
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobExists     = errors.New("job already exists")
	ErrJobIDRequired = errors.New("job id is required")
	// ErrUpdateConflict is returned when an optimistic update lost too many races.
	ErrUpdateConflict = errors.New("job update conflict")
)
