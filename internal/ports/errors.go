package ports

import "errors"

// Standard application-level errors. Adapters wrap underlying infrastructure
// errors with these so the core can branch on taxonomy, not on SDK types.
var (
	// General
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange transport
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrPositionNotFound     = errors.New("position not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Core lifecycle
	ErrRetryExhausted         = errors.New("retry budget exhausted")
	ErrStateCorrupted         = errors.New("persisted state unreadable or wrong version")
	ErrReconciliationMismatch = errors.New("local position record disagrees with exchange")
	ErrAlreadyRunning         = errors.New("trading loop already running")

	// Repository
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

// IsTransient reports whether an error is a transport-level failure worth
// retrying. Anything else (bad request, auth, insufficient funds) will not
// improve with repetition.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrExchangeUnavailable) ||
		errors.Is(err, ErrUnknown)
}
