package web

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ctxKey is used to store/retrieve a Values from a context.Context.
type ctxKey int

const key ctxKey = 1

// Values carries information about each request, for logging and to know
// when to stop processing after a shutdown signal.
type Values struct {
	TraceID    string
	Now        time.Time
	StatusCode int
}

// GetValues returns the Values struct stored in the context.
func GetValues(ctx context.Context) (*Values, error) {
	v, ok := ctx.Value(key).(*Values)
	if !ok {
		return nil, errors.New("web value missing from context")
	}
	return v, nil
}

// setValues stores a Values in the context, used at the start of a request.
func setValues(ctx context.Context, v *Values) context.Context {
	return context.WithValue(ctx, key, v)
}

// GetTraceID returns the trace id from the context, or the all-zero uuid
// if it is missing. Handlers that log outside a request lifecycle can safely call
// this without checking an error.
func GetTraceID(ctx context.Context) string {
	v, ok := ctx.Value(key).(*Values)
	if !ok {
		return "00000000-0000-0000-0000-000000000000"
	}
	return v.TraceID
}

// newTraceID returns a new random trace id.
func newTraceID() string {
	return uuid.NewString()
}
