package auth

import "context"

type identityKey struct{}

// Identity is the authenticated caller of a request. CoachingID scopes
// every fee operation the caller may perform.
type Identity struct {
	CoachingID string
	Role       Role
	Subject    string
}

// WithIdentity attaches the caller identity to ctx.
func WithIdentity(ctx context.Context, coachingID string, role Role, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{CoachingID: coachingID, Role: role, Subject: subject})
}

// IdentityFromContext returns the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// TenantIDFromContext returns the coaching the caller belongs to.
func TenantIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.CoachingID
}

func RoleFromContext(ctx context.Context) Role {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	if role, valid := NormalizeRole(string(id.Role)); valid {
		return role
	}
	return ""
}

// SubjectFromContext returns the acting user id recorded as audit actor.
func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}

// EnsureCoaching fails with ErrTenantMismatch when the caller in ctx belongs
// to another coaching. Calls without an identity, such as feectl or the
// roll-forward job, pass.
func EnsureCoaching(ctx context.Context, coachingID string) error {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.CoachingID == "" || coachingID == "" || id.CoachingID == coachingID {
		return nil
	}
	return ErrTenantMismatch
}
