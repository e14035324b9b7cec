package middleware

import (
	"net/http"
	"time"

	logpkg "github.com/quickfix/quickfix-api/internal/logger"
	"github.com/quickfix/quickfix-api/internal/request"
	"go.uber.org/zap"
)

// Logging creates logging middleware
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newStatusRecorder(w)

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			// Identity is attached by auth middleware further down the chain, so
			// it is only visible here when auth ran on an outer router.
			if uid := request.UID(r); uid != "" {
				fields = append(fields, zap.String("uid", logpkg.SanitizeUID(uid)))
			}
			logger.Info("http_request", fields...)
		})
	}
}
