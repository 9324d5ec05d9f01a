package ledger

import "errors"

var (
	// ErrInsufficientCredits is returned when all buckets are exhausted at
	// consumption time.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrPaymentAlreadyProcessed signals that the payment reference was
	// already applied. Callers treat it as a successful no-op, not a failure.
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")

	// ErrAlreadyRefunded signals that the original transaction has a refund
	// on record. Safe to treat as success under at-least-once resolution.
	ErrAlreadyRefunded = errors.New("transaction already refunded")

	// ErrTransactionNotFound is returned for refunds against unknown or
	// non-spend transactions.
	ErrTransactionNotFound = errors.New("credit transaction not found")

	// ErrInvalidAmount rejects zero or negative credit grants.
	ErrInvalidAmount = errors.New("credit amount must be positive")
)
