package domain

import "errors"

var (
	// ErrNotFound is returned when no record exists at the requested key.
	ErrNotFound = errors.New("user not found")
	// ErrProtectedField is returned when a general update touches available_time.
	ErrProtectedField = errors.New("available_time can only change through add or deduct")
	// ErrInsufficientTime is returned when a deduction exceeds the balance.
	ErrInsufficientTime = errors.New("not enough available time")
	// ErrInvalidRequest marks malformed input (bad JSON, missing fields).
	ErrInvalidRequest = errors.New("invalid request")
)
