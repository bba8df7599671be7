package xerrors

import "errors"

// Billing error taxonomy. Services wrap these with context via
// fmt.Errorf("...: %w", err); handlers map them to HTTP statuses.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized access")
	ErrValidation          = errors.New("invalid input")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrNotSettled          = errors.New("payment not settled")
	ErrDuplicateEntry      = errors.New("duplicate entry")
	ErrPersistence         = errors.New("persistence failure")
	ErrInternal            = errors.New("internal server error")
)
