package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/faucet/business/web/errs"
	"github.com/ardanlabs/faucet/foundation/validate"
	"github.com/ardanlabs/faucet/foundation/web"
	"go.uber.org/zap"
)

// Errors handles errors coming out of the call chain. It detects normal
// application errors which are used to respond to the client in a uniform way.
// Unexpected errors (status >= 500) are logged.
func Errors(log *zap.SugaredLogger) web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Run the next handler and catch any propagated error.
			if err := handler(ctx, w, r); err != nil {
				traceID := web.GetTraceID(ctx)

				// Build out the error response.
				var er errs.Response
				var status int
				switch {
				case errs.IsTrusted(err):
					trsErr := errs.GetTrusted(err)
					er = trsErr.Response()
					status = trsErr.Status

				case validate.IsFieldErrors(err):
					fieldErrors := validate.GetFieldErrors(err)
					er = errs.Response{
						Error:  "data validation error",
						Code:   "InvalidRequest",
						Fields: fieldErrors.Fields(),
					}
					status = http.StatusBadRequest

				default:
					er = errs.Response{
						Error: http.StatusText(http.StatusInternalServerError),
						Code:  "UnknownError",
					}
					status = http.StatusInternalServerError
				}

				// Client mistakes are expected, anything else needs attention.
				if status >= http.StatusInternalServerError {
					log.Errorw("ERROR", "traceid", traceID, "status", status, "ERROR", err)
				} else {
					log.Infow("ERROR", "traceid", traceID, "status", status, "ERROR", err)
				}

				// Respond with the error back to the client.
				if err := web.Respond(ctx, w, er, status); err != nil {
					return err
				}

				// If we receive the shutdown err we need to return it
				// back to the base handler to shut down the service.
				if web.IsShutdown(err) {
					return err
				}
			}

			// The error has been handled so we can stop propagating it.
			return nil
		}

		return h
	}

	return m
}
