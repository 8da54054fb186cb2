package services

import "errors"

// Error taxonomy shared by all services. Handlers map these to HTTP
// status codes; everything else is an internal error.
var (
	// ErrInvalidInput marks a malformed or missing request field. No
	// state change has happened.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown package, account or transaction.
	ErrNotFound = errors.New("not found")

	// ErrGatewayUnavailable marks an M-Pesa call that failed or timed
	// out. Retryable by the caller; this layer does not retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrRouterUnavailable marks a MikroTik call that failed after the
	// configured connection attempts. Retryable by the caller.
	ErrRouterUnavailable = errors.New("router unavailable")

	// ErrProvisioningFailed marks a paid entitlement that could not be
	// applied to the router. The transaction stays completed and shows
	// up in the unprovisioned reconciliation query.
	ErrProvisioningFailed = errors.New("provisioning failed")
)
