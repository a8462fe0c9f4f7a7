package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"authcore/pkg/platform/httputil"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/requestcontext"
)

// Throttle caps the whole listener at perSecond requests with the given burst.
// It protects the operator API itself; per-identifier limits live in the
// request limiter.
func Throttle(perSecond float64, burst int, logger *slog.Logger, m *Metrics) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reservation := limiter.Reserve()
			if !reservation.OK() {
				deny(w, r, logger, m, time.Second)
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				deny(w, r, logger, m, delay)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, logger *slog.Logger, m *Metrics, retryAfter time.Duration) {
	ctx := r.Context()
	if m != nil {
		m.Throttled.Inc()
	}
	logger.WarnContext(ctx, "admin api throttled",
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, dErrors.NewRetryable(dErrors.CodeRateLimitExceeded, "too many admin requests", retryAfter))
}
