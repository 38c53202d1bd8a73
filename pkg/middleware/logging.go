package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"chatsync/pkg/logging"
)

// RequestLogger logs every outgoing request with its status and latency.
func RequestLogger(log *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			reqLog := logging.FromContextOr(r.Context(), log).With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			start := time.Now()
			resp, err := next.RoundTrip(r)
			elapsed := slog.Int64("duration_ms", time.Since(start).Milliseconds())
			if err != nil {
				reqLog.WarnContext(r.Context(), "http client - round trip - request failed", elapsed, logging.Err(err))
				return resp, err
			}
			level := slog.LevelDebug
			if resp.StatusCode >= 400 {
				level = slog.LevelWarn
			}
			reqLog.Log(r.Context(), level, "http client - round trip - request done", elapsed, slog.Int("status", resp.StatusCode))
			return resp, nil
		})
	}
}
