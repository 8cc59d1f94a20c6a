package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrHalted           = errors.New("trading halted: kill switch engaged")
	ErrCapacity         = errors.New("max open trades reached")
	ErrTradeTooLarge    = errors.New("trade size exceeds limit")
	ErrBelowThreshold   = errors.New("net profit below threshold")
	ErrVenueUnavailable = errors.New("venue unavailable: circuit open")
	ErrStaleBook        = errors.New("book snapshot too old")
	ErrOrderTimeout     = errors.New("order reached no terminal status in time")
	ErrUnwindFailed     = errors.New("compensating order failed")
	ErrUnsupported      = errors.New("operation not supported by venue")
)
