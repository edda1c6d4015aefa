package biz

import "errors"

var (
	// ErrAccessDenied is returned when a payload cannot be opened with the
	// presented key. Wrong key and corrupted blob are deliberately
	// indistinguishable to the caller.
	ErrAccessDenied = errors.New("access denied")

	// ErrKeyMissing is returned when an operation that touches content is
	// invoked without a key carrier in scope.
	ErrKeyMissing = errors.New("content key required")

	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidPassword = errors.New("invalid password")

	// ErrTenantSuspended rejects data-plane work for suspended tenants.
	ErrTenantSuspended = errors.New("tenant suspended")

	// ErrActionExecutionFailed wraps per-action handler failures during a
	// drain; it marks the action failed without failing the request.
	ErrActionExecutionFailed = errors.New("action execution failed")

	ErrInternal = errors.New("server internal error, please try again later")
)
