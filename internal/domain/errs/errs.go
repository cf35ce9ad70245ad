// Package errs holds the error kinds shared by every layer of the dashboard.
package errs

import "errors"

var (
	// ErrIdentityUnavailable means no signing provider is reachable or the user refused access.
	ErrIdentityUnavailable = errors.New("identity unavailable")

	// ErrLedgerUnavailable covers network failures and timeouts on ledger reads or writes.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrLedgerRejected means the ledger refused an operation, e.g. an unregistered producer.
	ErrLedgerRejected = errors.New("ledger rejected operation")

	// ErrValidationFailed is returned before anything reaches the ledger.
	ErrValidationFailed = errors.New("validation failed")

	// ErrJoinUnresolved marks a sale whose inventory record could not be resolved for the current producer.
	ErrJoinUnresolved = errors.New("sale could not be joined to inventory")

	// ErrBusy rejects a write while another write is still pending.
	ErrBusy = errors.New("another operation is pending")

	// ErrStaleAfterWrite marks a confirmed write whose follow-up refresh failed.
	ErrStaleAfterWrite = errors.New("write confirmed but refresh failed")

	// ErrNotRegistered rejects dashboard operations before the producer has registered.
	ErrNotRegistered = errors.New("producer not registered")

	// ErrAlreadyRegistered rejects a registration from a producer the ledger already knows.
	ErrAlreadyRegistered = errors.New("producer already registered")

	// ErrNotFound means a record was asked for that the dashboard has not fetched.
	ErrNotFound = errors.New("record not found")
)

// Kind returns the name of the error kind wrapped by err, or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrIdentityUnavailable):
		return "identity_unavailable"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStaleAfterWrite):
		return "stale_after_write"
	case errors.Is(err, ErrLedgerRejected):
		return "ledger_rejected"
	case errors.Is(err, ErrLedgerUnavailable):
		return "ledger_unavailable"
	case errors.Is(err, ErrJoinUnresolved):
		return "join_unresolved"
	default:
		return "internal"
	}
}
