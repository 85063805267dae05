package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"notemesh/pkg/auth"
	pkgerrors "notemesh/pkg/errors"
)

// Authenticate verifies the bearer token and attaches the user to the
// request context. A nil userLimiter disables per-user rate limiting.
func Authenticate(verifier auth.TokenVerifier, userLimiter auth.RateLimiter, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Missing authentication token"))
				return
			}

			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("ip", clientIP(r)),
					zap.String("path", r.URL.Path),
				)
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Token has expired"))
				case errors.Is(err, auth.ErrInvalidSignature):
					errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Invalid token signature"))
				default:
					errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Invalid token"))
				}
				return
			}

			if userLimiter != nil {
				allowed, err := userLimiter.Allow(r.Context(), user.UserID)
				if err != nil {
					errs.Handle(w, r, pkgerrors.NewInternalError("Rate limiter failed").WithCause(err))
					return
				}
				if !allowed {
					errs.Handle(w, r, pkgerrors.NewRateLimitError("User rate limit exceeded"))
					return
				}
			}

			logger.Debug("Request authenticated",
				zap.String("user_id", user.UserID),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
		})
	}
}

// LocalUser attaches a fixed user to every request. It backs development
// mode and the single-user sqlite setup where authentication is disabled.
// An X-User-ID header overrides the user id.
func LocalUser(userID string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := userID
			if h := r.Header.Get("X-User-ID"); h != "" {
				id = h
			}
			user := &auth.UserContext{UserID: id, Roles: []string{auth.DefaultAudience}}
			next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
		})
	}
}

// RateLimitIP rejects clients that exceed the per-IP limit
func RateLimitIP(limiter auth.RateLimiter, errs *pkgerrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), clientIP(r))
			if err == nil && !allowed {
				errs.Handle(w, r, pkgerrors.NewRateLimitError("Rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads the bearer token from the Authorization header, or
// from the token query parameter used by browser websocket upgrades.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return header
	}
	return r.URL.Query().Get("token")
}

// clientIP relies on chi's RealIP middleware having normalized RemoteAddr
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
