package vms

import "errors"

var (
	// ErrAuthMissing means the server record lacks the credentials the
	// provider requires. Returned before any network call is attempted.
	ErrAuthMissing = errors.New("vms credentials missing")

	// ErrNotSupported means the provider (or an unregistered provider id)
	// cannot serve the requested operation.
	ErrNotSupported = errors.New("operation not supported by provider")

	// ErrMonitorNotFound means the provider answered but knows no monitor
	// with the requested id.
	ErrMonitorNotFound = errors.New("monitor not found")

	// ErrConnectionFailed covers network failures, timeouts and
	// non-success HTTP statuses from a provider.
	ErrConnectionFailed = errors.New("vms connection failed")
)
