package mid

import (
	"context"
	"expvar"
	"net/http"

	"github.com/meridianlabs/ledgerd/foundation/web"
)

var m = struct {
	requests *expvar.Int
	errors   *expvar.Int
	panics   *expvar.Int
}{
	requests: expvar.NewInt("requests"),
	errors:   expvar.NewInt("errors"),
	panics:   expvar.NewInt("panics"),
}

// IncPanics increments the panic counter exposed at /debug/vars.
func IncPanics() {
	m.panics.Add(1)
}

// Metrics updates program counters exposed at /debug/vars for every
// request that passes through it.
func Metrics() web.Middleware {
	mid := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			m.requests.Add(1)

			err := handler(ctx, w, r)
			if err != nil {
				m.errors.Add(1)
			}

			return err
		}
		return h
	}
	return mid
}
