package services

import "errors"

// Service errors
var (
	// Progress tracking errors
	ErrJobNotTracked      = errors.New("job is not tracked")
	ErrChannelUnavailable = errors.New("progress channel unavailable")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
)
