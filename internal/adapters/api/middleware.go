package api

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgeops/keyforge/internal/core/domain"
	"github.com/forgeops/keyforge/internal/core/ports"
	"github.com/forgeops/keyforge/internal/infrastructure/metrics"
	"github.com/forgeops/keyforge/internal/infrastructure/ratelimit"
)

type contextKey string

const (
	// CtxUser holds the *domain.User authenticated by a session token.
	CtxUser contextKey = "user"
	// CtxAPIKey holds the *domain.APIKey authenticated by a raw key.
	CtxAPIKey contextKey = "api_key"
	// CtxRequestID holds the per-request correlation id.
	CtxRequestID contextKey = "request_id"
)

// APIKeyHeader is the dedicated header carrying a raw API key for
// service-to-service calls.
const APIKeyHeader = "X-API-Key"

// SessionAuth authenticates requests via a Bearer session token and
// stores the resolved user in the request context.
func SessionAuth(auth ports.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			user, err := auth.CurrentUser(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrTokenInvalid) {
					writeError(w, http.StatusUnauthorized, "could not validate credentials")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), CtxUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyAuth authenticates service-to-service requests via the
// X-API-Key header. Unknown or mismatched keys read as 401; valid but
// deactivated keys as 403.
func APIKeyAuth(keys ports.APIKeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)
			if presented == "" {
				writeError(w, http.StatusUnauthorized, "authentication failed: API key is missing")
				return
			}

			key, err := keys.VerifyAndFetch(r.Context(), presented)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrUnauthorized):
					writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
				case errors.Is(err, domain.ErrKeyInactive):
					writeError(w, http.StatusForbidden, domain.ErrKeyInactive.Error())
				default:
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), CtxAPIKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit throttles a route per client IP. A nil limiter disables
// throttling; limiter errors fail open so a redis outage cannot lock
// everyone out.
func RateLimit(limiter *ratelimit.Limiter, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), route+":"+clientIP(r))
			if err != nil {
				log.Printf("rate limiter unavailable, failing open: %v", err)
			} else if !ok {
				writeError(w, http.StatusTooManyRequests, "too many attempts, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Telemetry assigns each request a correlation id, logs its outcome,
// and records the duration histogram keyed by route pattern.
func Telemetry(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			w.Header().Set("X-Request-ID", requestID)
			ctx := context.WithValue(r.Context(), CtxRequestID, requestID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			elapsed := time.Since(start)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

			logger.Info("request",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
