package origin

import "fmt"

// TransportError marks a failure to reach the origin or to get a well-formed
// JSON-RPC body back: network errors, timeouts, non-2xx statuses. Distinct
// from a semantic JSON-RPC error so callers can tell "the chain rejected
// this" from "we could not reach the chain". Only transport failures are
// retried.
type TransportError struct {
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("origin unreachable after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying cause
func (e *TransportError) Unwrap() error {
	return e.Err
}
