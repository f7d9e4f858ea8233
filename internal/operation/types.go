package operation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Request is one operation dispatch request. Created per call, immutable
// once built, discarded after dispatch.
type Request struct {
	// ID correlates log lines across the gate, router and backend.
	ID string

	// Name is the operation identifier from the catalog.
	Name string

	// Args is the open parameter bag for the operation.
	Args map[string]any

	// Resource is the primary target path for operations that act on
	// one (file path, application name). Empty for resource-free
	// operations like clipboard.get.
	Resource string
}

// NewRequest builds a request with a fresh correlation ID. The target
// resource is derived from well-known argument keys.
func NewRequest(name string, args map[string]any) *Request {
	if args == nil {
		args = map[string]any{}
	}
	return &Request{
		ID:       uuid.NewString(),
		Name:     name,
		Args:     args,
		Resource: resourceOf(name, args),
	}
}

// resourceOf extracts the target resource from the argument bag.
func resourceOf(name string, args map[string]any) string {
	for _, key := range []string{"path", "file_path", "name", "command"} {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// StringArg returns the named argument as a string, or "" if absent or
// not a string.
func (r *Request) StringArg(key string) string {
	v, _ := r.Args[key].(string)
	return v
}

// IntArg returns the named argument as an int, accepting the numeric
// types produced by JSON decoding. Returns def when absent.
func (r *Request) IntArg(key string, def int) int {
	switch v := r.Args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Result is the normalized outcome of one dispatched operation.
// Exactly one Result is produced per Request; it is never partially
// filled: success results carry a payload, failure results carry a kind
// and message.
type Result struct {
	// Success is the tag distinguishing the two result shapes.
	Success bool `json:"success"`

	// Payload holds operation-specific output on success.
	Payload map[string]any `json:"payload,omitempty"`

	// Kind classifies the failure. Empty on success.
	Kind ErrorKind `json:"kind,omitempty"`

	// Message is the human-readable failure description.
	Message string `json:"message,omitempty"`

	// Backend names the adapter that serviced the request, when one was
	// reached.
	Backend string `json:"backend,omitempty"`

	// DurationMs is wall time spent in dispatch.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// Ok builds a success result.
func Ok(payload map[string]any) *Result {
	return &Result{Success: true, Payload: payload}
}

// Fail builds a failure result with a formatted message.
func Fail(kind ErrorKind, format string, args ...any) *Result {
	return &Result{Success: false, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FailErr builds a failure result from an error, classifying it via
// KindOf.
func FailErr(err error) *Result {
	return &Result{Success: false, Kind: KindOf(err), Message: err.Error()}
}

// WithBackend stamps the servicing backend name.
func (r *Result) WithBackend(name string) *Result {
	r.Backend = name
	return r
}

// WithDuration stamps the elapsed dispatch time.
func (r *Result) WithDuration(d time.Duration) *Result {
	r.DurationMs = d.Milliseconds()
	return r
}
