package mid

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/faucet/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faucet_http_requests_total",
		Help: "Number of requests handled by method and status code.",
	}, []string{"method", "code"})

	latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faucet_http_request_duration_seconds",
		Help:    "Time spent handling requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	panics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faucet_http_panics_total",
		Help: "Number of panics recovered while handling requests.",
	})
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Errors are rendered further down the chain so the status
			// code is already set when we get here.
			if v, verr := web.GetValues(ctx); verr == nil {
				requests.WithLabelValues(r.Method, strconv.Itoa(v.StatusCode)).Inc()
				latency.WithLabelValues(r.Method).Observe(time.Since(v.Now).Seconds())
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
