package services

import "errors"

// Redemption and upload outcomes that callers branch on. Gate outcomes are
// routine; only ErrDeliveryFailed and unexpected persistence errors are
// escalated to operators.
var (
	ErrNotFound            = errors.New("file not found")
	ErrBlocked             = errors.New("user is blocked")
	ErrGateUnsatisfied     = errors.New("access gate not satisfied")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrDeliveryFailed      = errors.New("file delivery failed")
)

// ErrInvalidSetting rejects an admin write with an unknown key or a value
// that does not parse for its key.
var ErrInvalidSetting = errors.New("invalid setting")
