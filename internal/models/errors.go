package models

import "errors"

// Sentinel errors for the circulation engine. Services wrap these with
// context via %w; handlers map them to HTTP status codes with errors.Is.
var (
	// Validation errors, rejected before any transaction starts.
	ErrInvalidDuration = errors.New("invalid loan duration")
	ErrInvalidItemRef  = errors.New("invalid item reference")

	// State-conflict errors, detected inside the transaction.
	ErrAlreadyBorrowedBySelf = errors.New("book already borrowed by this user")
	ErrItemUnavailable       = errors.New("book is not available")
	ErrBorrowLimitExceeded   = errors.New("borrow limit reached")
	ErrAlreadyInQueue        = errors.New("user already has a reservation for this book")
	ErrItemAlreadyAvailable  = errors.New("book is available, borrow it directly")

	// Not-found errors.
	ErrNoActiveLoan        = errors.New("no active loan for this book")
	ErrBookNotFound        = errors.New("book not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrReservationNotFound = errors.New("reservation not found")

	// Collaborator failures.
	ErrCatalogUnresolvable = errors.New("catalog metadata could not be resolved")
)
