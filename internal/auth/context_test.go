package auth

import (
	"context"
	"errors"
	"testing"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "c1", RoleOperator, "desk-2")
	if got := TenantIDFromContext(ctx); got != "c1" {
		t.Fatalf("coaching: got %q", got)
	}
	if got := RoleFromContext(ctx); got != RoleOperator {
		t.Fatalf("role: got %q", got)
	}
	if got := SubjectFromContext(ctx); got != "desk-2" {
		t.Fatalf("subject: got %q", got)
	}
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("expected no identity on bare context")
	}
}

func TestRoleFromContextRejectsUnknownRole(t *testing.T) {
	ctx := WithIdentity(context.Background(), "c1", Role("owner"), "u")
	if got := RoleFromContext(ctx); got != "" {
		t.Fatalf("expected empty role, got %q", got)
	}
}

func TestNormalizeRole(t *testing.T) {
	if role, ok := NormalizeRole(" Admin "); !ok || role != RoleAdmin {
		t.Fatalf("expected admin, got %q %v", role, ok)
	}
	if _, ok := NormalizeRole("superuser"); ok {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestRoleAtLeast(t *testing.T) {
	cases := []struct {
		role, required Role
		want           bool
	}{
		{RoleAdmin, RoleOperator, true},
		{RoleOperator, RoleOperator, true},
		{RoleViewer, RoleOperator, false},
		{Role(""), RoleViewer, false},
	}
	for _, tc := range cases {
		if got := RoleAtLeast(tc.role, tc.required); got != tc.want {
			t.Fatalf("RoleAtLeast(%q, %q) = %v", tc.role, tc.required, got)
		}
	}
}

func TestEnsureCoaching(t *testing.T) {
	if err := EnsureCoaching(context.Background(), "c1"); err != nil {
		t.Fatalf("internal caller: %v", err)
	}
	ctx := WithIdentity(context.Background(), "c1", RoleViewer, "u")
	if err := EnsureCoaching(ctx, "c1"); err != nil {
		t.Fatalf("same coaching: %v", err)
	}
	if err := EnsureCoaching(ctx, "c2"); !errors.Is(err, ErrTenantMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
