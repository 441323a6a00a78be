package domain

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrMarketNotFound      = errors.New("market not found")
	ErrMarketExists        = errors.New("market already exists")
	ErrDuplicateOrder      = errors.New("duplicate order id")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidStatus       = errors.New("invalid status for transition")
	ErrInvalidKind         = errors.New("invalid market kind")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidProof        = errors.New("invalid settlement proof")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientEscrow  = errors.New("insufficient escrow")
	ErrRateLimited         = errors.New("rate limited")
	ErrBlobNotFound        = errors.New("blob not found")
	ErrLockHeld            = errors.New("lock already held")
)
