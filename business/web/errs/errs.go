// Package errs provides the tagged error type the Client API collaborator
// and the peer dispatcher both report failures through.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, independent of whatever
// transport (HTTP or the peer wire protocol) eventually reports it.
type Kind string

// The full set of kinds a Trusted error can carry.
const (
	Validation Kind = "validation"
	Resource   Kind = "resource"
	Consensus  Kind = "consensus"
	Transport  Kind = "transport"
	Internal   Kind = "internal"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error through the application with context
// about what kind of failure occurred and, for Internal errors, the
// underlying cause that should be logged but never shown to a caller.
type Trusted struct {
	Kind     Kind
	Reason   string
	NotFound bool
	Cause    error
}

// New constructs a Trusted error of the given kind.
func New(kind Kind, reason string) error {
	return &Trusted{Kind: kind, Reason: reason}
}

// Newf constructs a Trusted error of the given kind with a formatted reason.
func Newf(kind Kind, format string, args ...any) error {
	return &Trusted{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// NewNotFound constructs a Resource error distinguished as a not-found
// case, which the Client API collaborator maps to 404 instead of 503.
func NewNotFound(reason string) error {
	return &Trusted{Kind: Resource, Reason: reason, NotFound: true}
}

// Wrap constructs an Internal error carrying cause, which is logged with
// full context but never surfaced in an API response.
func Wrap(cause error, reason string) error {
	return &Trusted{Kind: Internal, Reason: reason, Cause: cause}
}

// Error implements the error interface. It never includes Cause: that
// detail belongs in the log, not in anything handed back to a caller.
func (t *Trusted) Error() string {
	return t.Reason
}

// Unwrap exposes Cause to errors.Is/errors.As, so log sites can still
// recover the original error for a full-context log line.
func (t *Trusted) Unwrap() error {
	return t.Cause
}

// IsTrusted reports whether err carries a Trusted classification.
func IsTrusted(err error) bool {
	var t *Trusted
	return errors.As(err, &t)
}

// GetTrusted returns the Trusted wrapper inside err, or nil if there is
// none.
func GetTrusted(err error) *Trusted {
	var t *Trusted
	if !errors.As(err, &t) {
		return nil
	}
	return t
}
