package model

import "errors"

// Sentinel errors for the conditions callers can act on. Wrap with
// fmt.Errorf("...: %w", err) to add context; handlers match with errors.Is.
var (
	// ErrProductNotFound means a product number or card did not resolve in
	// its directory. No mutation has been performed.
	ErrProductNotFound = errors.New("product not found")

	// ErrInsufficientFunds means a balance precondition failed. It is raised
	// strictly before any record is appended.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
