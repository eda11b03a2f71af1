package registry

import (
	"errors"
	"fmt"
)

// Domain errors for the registry package.
//
// Transport errors wrap ErrTransport and can be checked with errors.Is;
// logical rejections are returned as *APIError and checked with errors.As:
//
//	var apiErr *registry.APIError
//	if errors.As(err, &apiErr) {
//	    // registry rejected the call: apiErr.Code, apiErr.Message
//	}
var (
	// ErrTransport is wrapped by all connection, auth and timeout failures.
	// The connection is dropped and re-established on the next call.
	ErrTransport = errors.New("registry: transport failure")

	// ErrAuthFailed is returned when the auth handshake is rejected.
	ErrAuthFailed = errors.New("registry: authentication failed")

	// ErrNoToken is returned when no access token is configured.
	ErrNoToken = errors.New("registry: no access token configured")
)

// APIError is a logical rejection from the registry, carrying the
// registry's error code and message. The connection stays usable.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry: %s: %s", e.Code, e.Message)
}
