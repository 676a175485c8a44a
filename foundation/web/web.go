// Package web wraps httptreemux with the app-level conveniences every
// handler in this codebase relies on: a context-carried trace id, a
// signal-aware shutdown path, and a fixed error-returning handler
// signature that middleware compose around.
package web

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/dimfeld/httptreemux/v5"
)

// Handler is the signature every application handler and middleware
// implements: return the error, do not write it to the response directly.
// The Errors middleware is what turns a returned error into a response.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware wraps a Handler with cross-cutting behavior and returns a new
// Handler that includes it.
type Middleware func(Handler) Handler

// shutdownError is returned by a handler to request that the app initiate
// an integrity-driven shutdown, as opposed to just failing this one request.
type shutdownError struct {
	Message string
}

func (se *shutdownError) Error() string {
	return se.Message
}

// NewShutdownError returns an error indicating the service should shut
// down immediately, used when an untrusted error suggests the process is
// no longer in a good state to keep serving requests.
func NewShutdownError(message string) error {
	return &shutdownError{message}
}

// IsShutdown checks if a given error is a shutdown error.
func IsShutdown(err error) bool {
	_, ok := err.(*shutdownError)
	return ok
}

// App is the entrypoint into the application and what configures the
// context object that flows through every request. It wraps
// httptreemux.ContextMux and applies a stack of app-wide Middleware around
// every handler registered through Handle.
type App struct {
	mux      *httptreemux.ContextMux
	mw       []Middleware
	shutdown chan os.Signal
}

// NewApp constructs an App that knows how to route requests and apply
// mw, in order, to every request.
func NewApp(shutdown chan os.Signal, mw ...Middleware) *App {
	return &App{
		mux:      httptreemux.NewContextMux(),
		mw:       mw,
		shutdown: shutdown,
	}
}

// SignalShutdown asks the app to shut down when next convenient, used by
// handlers that detect the process is in a state where continuing to
// accept requests is unsafe.
func (a *App) SignalShutdown() {
	a.shutdown <- syscall.SIGTERM
}

// Handle associates a handler function, wrapped with app-wide and any
// route-specific Middleware, with an HTTP method and path pair.
func (a *App) Handle(method string, group string, path string, handler Handler, mw ...Middleware) {
	handler = wrapMiddleware(mw, handler)
	handler = wrapMiddleware(a.mw, handler)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		v := Values{
			TraceID: newTraceID(),
			Now:     time.Now(),
		}
		ctx = setValues(ctx, &v)

		if err := handler(ctx, w, r); err != nil {
			if IsShutdown(err) {
				a.SignalShutdown()
			}
		}
	}

	finalPath := path
	if group != "" {
		finalPath = "/" + group + path
	}

	a.mux.Handle(method, finalPath, h)
}

// ServeHTTP implements http.Handler by delegating to the underlying mux.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// wrapMiddleware applies a slice of Middleware to a handler, in reverse
// registration order, so the first Middleware in the slice runs first.
func wrapMiddleware(mw []Middleware, handler Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			handler = mw[i](handler)
		}
	}
	return handler
}
