package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/pkg/resilience"
)

// Timeout bounds each request with the handler timeout unless the
// incoming context already carries a deadline.
func Timeout(config *resilience.TimeoutConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, hasDeadline := r.Context().Deadline(); hasDeadline {
				logger.Debug("Context already has deadline, respecting parent timeout",
					zap.String("path", r.URL.Path),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := config.HandlerContext(r.Context())
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Chain applies middlewares so the first one listed runs outermost
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
