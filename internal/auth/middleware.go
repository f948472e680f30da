package auth

import (
	"context"
	"net/http"
	"strings"
)

// ctxKey is the private context key type for the authenticated identity.
type ctxKey struct{}

// FromContext returns the [Identity] stored by [Middleware], if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// WithIdentity returns a copy of ctx carrying the given identity. Intended
// for tests that bypass the middleware.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Middleware returns an [http.Handler] wrapper that requires a valid bearer
// token on every request. On success the identity is injected into the
// request context and the device's last-seen timestamp is refreshed; on
// failure the request is rejected with 401 and a JSON error body.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearer(r)
		if err != nil {
			unauthorized(w)
			return
		}
		id, err := s.VerifyToken(token)
		if err != nil {
			unauthorized(w)
			return
		}

		// Best effort; a failed touch must not reject the request.
		_ = s.devices.Touch(r.Context(), id.DeviceID)

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// extractBearer pulls the token out of the Authorization header.
func extractBearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingBearer
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"missing or invalid bearer token"}}`))
}
