package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrActiveRoundExists    = errors.New("another round is already open or live")
	ErrRoundNotOpen         = errors.New("round is not open for wagers")
	ErrRoundNotLive         = errors.New("round is not live")
	ErrInvalidTransition    = errors.New("invalid round status transition")
	ErrInvalidWager         = errors.New("invalid wager parameters")
	ErrInvalidPayout        = errors.New("invalid payout multiplier")
	ErrInvalidVerdict       = errors.New("invalid verdict")
	ErrVerdictNotSettleable = errors.New("verdict is not settleable")
	ErrRateLimited          = errors.New("rate limited")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrLockHeld             = errors.New("lock already held")
	ErrImageUnavailable     = errors.New("image unavailable")
)
