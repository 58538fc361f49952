package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Payment and subscription workflow
	ErrUnknownPlan        = errors.New("unknown plan")
	ErrUnknownAddOn       = errors.New("unknown add-on")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrPurchaseNotPaid    = errors.New("purchase is not paid")
	ErrMissingUser        = errors.New("purchase has no owning user")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrLockHeld           = errors.New("lock is held by another worker")
	ErrUnauthorized       = errors.New("unauthorized")
)
