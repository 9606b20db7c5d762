package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// quotaMiddleware charges one unit of the client's gateway quota before
// the request reaches the handler. A handler answering with an error
// status gets the unit back.
func (s *Server) quotaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refund, ok := s.chargeQuota(w, r)
		if !ok {
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			refund()
		}
	})
}

// chargeQuota consumes one unit for the client address and writes the
// rate limit headers. It responds 429 and returns false when the quota is
// spent. A failing limiter lets the request through. The returned refund
// gives the unit back when the action is rejected afterwards.
func (s *Server) chargeQuota(w http.ResponseWriter, r *http.Request) (func(), bool) {
	key := clientKey(r)
	noRefund := func() {}

	decision, err := s.limiter.Allow(r.Context(), key)
	if err != nil {
		slog.Warn("quota check failed, allowing request", "error", err, "client", key)
		return noRefund, true
	}

	if decision.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(decision.ResetIn.Round(time.Second).Seconds())))
	}

	if err := decision.Err(); err != nil {
		slog.Warn("quota exceeded", "client", key, "path", r.URL.Path, "reset_in", decision.ResetIn)
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.ResetIn.Round(time.Second).Seconds())))
		respondError(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
		return noRefund, false
	}

	refund := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()
		if err := s.limiter.Refund(ctx, key); err != nil {
			slog.Warn("quota refund failed", "error", err, "client", key)
			return
		}
		slog.Debug("quota refunded", "client", key, "path", r.URL.Path)
	}
	return refund, true
}

// clientKey is the client address without port. RealIP has already
// replaced RemoteAddr when the request came through a proxy.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
