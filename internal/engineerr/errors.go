// Package engineerr defines the sentinel error kinds every component
// presents as distinguishable, checked with errors.Is.
package engineerr

import "errors"

var (
	// ErrValidation marks malformed input; never logged as an error.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing trigger or tenant.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a tenant mismatch on a mutation.
	ErrForbidden = errors.New("forbidden")
	// ErrIllegalTransition marks a mutation against a terminal or
	// incompatible trigger state.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrStoreBusy marks a file-lock acquisition timeout; retryable.
	ErrStoreBusy = errors.New("store busy")
	// ErrStoreCorrupt marks a record that failed to decode; callers skip
	// and continue.
	ErrStoreCorrupt = errors.New("store record corrupt")
	// ErrBrokerUnavailable marks a login or reachability failure.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrBrokerRejected marks a broker-accepted login but refused order.
	ErrBrokerRejected = errors.New("broker rejected order")
	// ErrQuoteUnavailable marks a transient quote-fetch failure.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrUnsupported marks a broker/order-kind combination the adapter
	// cannot satisfy.
	ErrUnsupported = errors.New("unsupported operation")
)
