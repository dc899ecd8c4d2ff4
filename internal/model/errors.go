package model

import "errors"

// Error taxonomy shared by the registry and the marketplace. Operations wrap
// these sentinels with a descriptive reason; callers classify with errors.Is.
var (
	// ErrNotAuthorized means the caller lacks the required role or relationship.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound means the referenced asset or order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means a price out of band, zero quantity, or zero price.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientBalance means the account lacks the shares to list or move.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientSupply means the order book cannot fill a buy request.
	ErrInsufficientSupply = errors.New("insufficient supply")

	// ErrInsufficientPayment means the attached payment is below the computed cost.
	ErrInsufficientPayment = errors.New("insufficient payment")

	// ErrAlreadyListed means a duplicate order in the single-order-per-seller model.
	ErrAlreadyListed = errors.New("already listed")

	// ErrNotSupported means the operation is disallowed (batch transfer).
	ErrNotSupported = errors.New("not supported")
)
