package llm

import "fmt"

// ErrorKind classifies a transport failure so callers can branch on the
// category instead of sniffing error strings.
type ErrorKind string

const (
	// KindConfig means the endpoint configuration is incomplete. Detected
	// before any network I/O.
	KindConfig ErrorKind = "config"

	// KindPayloadTooLarge means the request body exceeded the size ceiling
	// even after pruning old messages. No network call was made.
	KindPayloadTooLarge ErrorKind = "payload_too_large"

	// KindTimeout means the request deadline elapsed.
	KindTimeout ErrorKind = "timeout"

	// KindCancelled means the caller aborted the request.
	KindCancelled ErrorKind = "cancelled"

	// KindNetwork means a transport-level failure (connection refused, DNS,
	// reset) rather than an HTTP error response.
	KindNetwork ErrorKind = "network"

	// KindHTTP means the endpoint returned a non-2xx response.
	KindHTTP ErrorKind = "http"

	// KindEmptyResponse means a 2xx response carried no choices.
	KindEmptyResponse ErrorKind = "empty_response"
)

// Error is a typed chat transport failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int    // set for KindHTTP
	Host       string // endpoint host, set for KindNetwork
	PayloadLen int    // estimated request size in bytes, set where useful
	Msg        string
	Cause      error

	// ToolingUnsupported marks a 400-class response to a request that
	// carried a tool catalog. The orchestrator uses it for its typed
	// retry-without-tools fallback.
	ToolingUnsupported bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// IsKind reports whether err is a transport *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	te, ok := err.(*Error)
	return ok && te.Kind == kind
}

// IsToolingUnsupported reports whether err signals that the backend
// rejected the tool catalog.
func IsToolingUnsupported(err error) bool {
	te, ok := err.(*Error)
	return ok && te.ToolingUnsupported
}
