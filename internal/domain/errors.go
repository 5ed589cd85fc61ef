package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidMessage = errors.New("invalid feed message")
	ErrStaleSequence  = errors.New("stale sequence number")
	ErrUnknownMarket  = errors.New("unknown market")
	ErrSigningFailed  = errors.New("signing failed")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrLockHeld       = errors.New("lock already held")
	ErrInvalidConfig  = errors.New("invalid configuration")
)
