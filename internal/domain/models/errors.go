package models

import "errors"

var (
	// ErrUnknownSecurity marks a ticker that was never registered. It is a
	// contract violation and always reaches the caller.
	ErrUnknownSecurity = errors.New("unknown security")
	// ErrDuplicateSecurity is returned when a ticker is registered twice.
	ErrDuplicateSecurity = errors.New("duplicate security")
	// ErrLimitBreached is advisory unless hard-stop mode is enabled.
	ErrLimitBreached = errors.New("risk limit breached")
	// ErrInvalidEvent marks a malformed inbound event.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidFill marks a fill with a non-positive quantity or price.
	ErrInvalidFill = errors.New("invalid fill")
)
