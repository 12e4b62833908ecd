package apperrors

import "errors"

// Domain errors for the simulated account engine
var (
	ErrUnknownFeeKind    = errors.New("unknown fee kind")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidSize       = errors.New("invalid size")
	ErrInvalidLeverage   = errors.New("invalid leverage")
	ErrInvalidDirection  = errors.New("invalid direction")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderNotFound     = errors.New("order not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrPositionClosed    = errors.New("position closed")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrInvalidCapKind    = errors.New("invalid cap kind")
	ErrInvalidParameter  = errors.New("invalid parameter")
)

// Storage errors
var (
	ErrStoreClosed      = errors.New("store closed")
	ErrChecksumMismatch = errors.New("record checksum mismatch")
)
