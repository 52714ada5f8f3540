package domain

import "fmt"

// NetworkCode is the low-level reason a request produced no response
type NetworkCode string

const (
	NetworkConnectionRefused NetworkCode = "connection-refused"
	NetworkTimedOut          NetworkCode = "timed-out"
	NetworkNameNotResolved   NetworkCode = "name-not-resolved"
	NetworkUnreachable       NetworkCode = "network-unreachable"
	NetworkAborted           NetworkCode = "aborted"
)

// TransportFailure is the error the transport layer returns for a
// failed request. Exactly one of the two variants is populated:
// a NetworkCode when no response was received, or a StatusCode (with
// the response body) when a non-2xx response came back. The transport
// never retries or classifies; that is the layer above.
type TransportFailure struct {
	Code       NetworkCode // Set iff no response was received
	StatusCode int         // Set iff a response was received
	Body       []byte      // Response body when StatusCode is set
	Err        error       // Underlying error, if any
}

// Error implements the error interface
func (f *TransportFailure) Error() string {
	if f.IsNetwork() {
		if f.Err != nil {
			return fmt.Sprintf("transport failure (%s): %v", f.Code, f.Err)
		}
		return fmt.Sprintf("transport failure (%s)", f.Code)
	}
	return fmt.Sprintf("transport failure: status %d", f.StatusCode)
}

// Unwrap exposes the underlying error for errors.Is/As
func (f *TransportFailure) Unwrap() error {
	return f.Err
}

// IsNetwork reports whether the failure happened before any response
// was received
func (f *TransportFailure) IsNetwork() bool {
	return f.StatusCode == 0
}
