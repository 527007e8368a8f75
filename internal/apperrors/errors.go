package apperrors

import "errors"

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates that the operation conflicts with the current state of the resource.
var ErrConflict = errors.New("conflict with current resource state")

// ErrInsufficientFunds indicates the source account cannot cover the requested amount.
// The transaction record is marked FAILED; no balance is mutated.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrAlreadyReversed indicates the transaction has already been reversed.
// A transaction can be reversed at most once.
var ErrAlreadyReversed = errors.New("transaction already reversed")

// ErrFatalInconsistency indicates balances were mutated but the subsequent
// durable write failed. This is never rolled back automatically; the
// transaction is left COMPLETED with a reconciliation flag and must be
// resolved manually.
var ErrFatalInconsistency = errors.New("fatal inconsistency requiring manual reconciliation")

// ErrDeliveryFailure indicates the event publisher exhausted its retry budget.
// The underlying transaction is already committed; this is an operational
// incident, not a caller-facing failure.
var ErrDeliveryFailure = errors.New("event delivery failed after retries")

// ErrInternal indicates an unexpected internal error.
var ErrInternal = errors.New("internal error")
