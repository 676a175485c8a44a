package mid

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/meridianlabs/ledgerd/foundation/web"
)

// Panics recovers from a panic inside a handler and turns it into an
// error, so a single bad request cannot take the whole listener down.
func Panics() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					IncPanics()
					trace := debug.Stack()
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, string(trace))
				}
			}()

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
