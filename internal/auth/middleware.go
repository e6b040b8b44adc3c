package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware authenticates bearer tokens, checks the role the policy asks
// for and keeps callers inside their own coaching.
type Middleware struct {
	Secret []byte
	Policy Policy
	logger *zap.Logger
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithDenyLogger logs every rejected request at debug level.
func WithDenyLogger(logger *zap.Logger) MiddlewareOption {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{Secret: secret, Policy: policy, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, guarded := m.Policy.RequiredRole(r)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(bearerToken(r), m.Secret)
		if err != nil {
			m.deny(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			m.deny(w, r, http.StatusForbidden, "role "+string(role)+" below "+string(required))
			return
		}
		ctx := WithIdentity(r.Context(), claims.TenantID, role, claims.Subject)
		if err := EnsureCoaching(ctx, CoachingIDFromPath(r.URL.Path)); err != nil {
			m.deny(w, r, http.StatusForbidden, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, status int, reason string) {
	m.logger.Debug("request denied",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("reason", reason),
	)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="coaching-fees"`)
		http.Error(w, "unauthorized", status)
		return
	}
	http.Error(w, "forbidden", status)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
