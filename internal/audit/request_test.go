package audit

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:5123"
	if got := ClientIP(r); got != "10.0.0.9" {
		t.Fatalf("peer: got %q", got)
	}
	r.Header.Set("X-Real-IP", " 172.16.0.4 ")
	if got := ClientIP(r); got != "172.16.0.4" {
		t.Fatalf("real ip: got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Fatalf("forwarded: got %q", got)
	}
}

func TestWithRequestCarriesOrigin(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "192.0.2.1:80"
	r.Header.Set("User-Agent", "front-desk/1.0")

	info, ok := RequestInfoFromContext(WithRequest(context.Background(), r))
	if !ok {
		t.Fatalf("expected request info")
	}
	if info.IP != "192.0.2.1" || info.UserAgent != "front-desk/1.0" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, ok := RequestInfoFromContext(context.Background()); ok {
		t.Fatalf("expected none on bare context")
	}
}
