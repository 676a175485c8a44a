package mid

import (
	"context"
	"net/http"

	"github.com/meridianlabs/ledgerd/business/web/errs"
	"github.com/meridianlabs/ledgerd/foundation/web"
	"go.uber.org/zap"
)

// Errors turns whatever error a handler returns into a JSON response,
// classifying it through errs.Trusted where possible and otherwise
// treating it as an Internal error that must never leak details to the
// caller.
func Errors(log *zap.SugaredLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if err := handler(ctx, w, r); err != nil {
				traceID := web.GetTraceID(ctx)

				trusted := errs.GetTrusted(err)
				if trusted == nil {
					trusted = &errs.Trusted{Kind: errs.Internal, Reason: "internal error", Cause: err}
				}

				if trusted.Kind == errs.Internal {
					log.Errorw("internal error", "traceid", traceID, "reason", trusted.Reason, "ERROR", trusted.Cause)
				} else {
					log.Infow("request error", "traceid", traceID, "kind", trusted.Kind, "reason", trusted.Reason)
				}

				resp := errs.Response{Error: publicReason(trusted)}
				if err := web.Respond(ctx, w, resp, statusFor(trusted)); err != nil {
					return err
				}

				if web.IsShutdown(err) {
					return err
				}
			}

			return nil
		}
		return h
	}
	return m
}

// publicReason hides the concrete message for Internal errors: the cause
// might contain paths, driver errors, or other detail this API never
// surfaces to a caller.
func publicReason(t *errs.Trusted) string {
	if t.Kind == errs.Internal {
		return "internal error"
	}
	return t.Reason
}

func statusFor(t *errs.Trusted) int {
	switch {
	case t.NotFound:
		return http.StatusNotFound
	case t.Kind == errs.Validation:
		return http.StatusBadRequest
	case t.Kind == errs.Resource:
		return http.StatusServiceUnavailable
	case t.Kind == errs.Consensus:
		return http.StatusConflict
	case t.Kind == errs.Transport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
