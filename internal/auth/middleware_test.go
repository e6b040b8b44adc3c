package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

func TestMiddlewareAccess(t *testing.T) {
	handler := NewMiddleware(testSecret, NewDefaultPolicy([]string{"/healthz"}, nil)).Wrap(okHandler())

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/coachings/c1/fee-structures", "", http.StatusUnauthorized},
		{"bad signature", http.MethodGet, "/api/v1/coachings/c1/fee-structures", signed(t, []byte("other"), "c1", RoleAdmin), http.StatusUnauthorized},
		{"viewer reads ledger", http.MethodGet, "/api/v1/coachings/c1/members/m1/ledger", signed(t, testSecret, "c1", RoleViewer), http.StatusOK},
		{"viewer creates structure", http.MethodPost, "/api/v1/coachings/c1/fee-structures", signed(t, testSecret, "c1", RoleViewer), http.StatusForbidden},
		{"operator records payment", http.MethodPost, "/api/v1/coachings/c1/records/r1/payments", signed(t, testSecret, "c1", RoleOperator), http.StatusOK},
		{"operator sends reminder", http.MethodPost, "/api/v1/coachings/c1/records/r1/reminders", signed(t, testSecret, "c1", RoleOperator), http.StatusOK},
		{"operator waives", http.MethodPost, "/api/v1/coachings/c1/records/r1/waive", signed(t, testSecret, "c1", RoleOperator), http.StatusForbidden},
		{"operator bulk assigns", http.MethodPost, "/api/v1/coachings/c1/assignments/bulk", signed(t, testSecret, "c1", RoleOperator), http.StatusForbidden},
		{"admin refunds", http.MethodPost, "/api/v1/coachings/c1/payments/p1/refunds", signed(t, testSecret, "c1", RoleAdmin), http.StatusOK},
		{"other coaching", http.MethodGet, "/api/v1/coachings/c2/members/m1/ledger", signed(t, testSecret, "c1", RoleAdmin), http.StatusForbidden},
		{"health exempt", http.MethodGet, "/healthz", "", http.StatusOK},
		{"unguarded path", http.MethodGet, "/favicon.ico", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestMiddlewarePassesIdentity(t *testing.T) {
	var got Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	})
	handler := NewMiddleware(testSecret, NewDefaultPolicy(nil, nil)).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/coachings/c1/fee-structures", nil)
	req.Header.Set("Authorization", "bearer "+signed(t, testSecret, "c1", RoleOperator))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.CoachingID != "c1" || got.Role != RoleOperator || got.Subject != "user-1" {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestUnauthorizedAdvertisesBearer(t *testing.T) {
	handler := NewMiddleware(testSecret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coachings/c1/audit-logs", nil))
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestIssueJWTRoundTrip(t *testing.T) {
	token, err := IssueJWT(testSecret, "c9", RoleOperator, "user-3", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.TenantID != "c9" || claims.Role != "operator" || claims.Subject != "user-3" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := IssueJWT(testSecret, "c9", Role("owner"), "u", time.Minute); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestParseJWTRejectsExpired(t *testing.T) {
	token, err := IssueJWT(testSecret, "c1", RoleViewer, "u", time.Nanosecond)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(time.Second + 10*time.Millisecond)
	if _, err := ParseJWT(token, testSecret); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func signed(t *testing.T, secret []byte, coachingID string, role Role) string {
	t.Helper()
	token, err := IssueJWT(secret, coachingID, role, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
