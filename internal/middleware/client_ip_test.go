package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func mustTrust(t *testing.T, entries ...string) *ProxyTrust {
	t.Helper()
	p, err := ParseTrustedProxies(entries)
	if err != nil {
		t.Fatalf("parse trusted proxies: %v", err)
	}
	return p
}

func resolved(p *ProxyTrust, req *http.Request) string {
	var got string
	RealIP(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	})).ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestClientIPIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("X-Real-IP", "203.0.113.8")
	req.RemoteAddr = "198.51.100.2:41234"

	for name, p := range map[string]*ProxyTrust{
		"no proxies":    nil,
		"other proxies": mustTrust(t, "10.0.0.0/8"),
	} {
		if got := resolved(p, req); got != "198.51.100.2" {
			t.Fatalf("%s: expected peer address, got %q", name, got)
		}
	}
}

func TestClientIPHonorsForwardedForFromTrustedProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "192.0.2.55, 203.0.113.7, 10.0.0.9")
	req.RemoteAddr = "10.0.0.1:5555"

	// the leftmost entry is client supplied; the right-most untrusted hop wins
	if got := resolved(mustTrust(t, "10.0.0.0/8"), req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded address, got %q", got)
	}
}

func TestClientIPHonorsRealIPFromTrustedProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	req.RemoteAddr = "127.0.0.1:5555"

	if got := resolved(mustTrust(t, "127.0.0.1"), req); got != "203.0.113.9" {
		t.Fatalf("expected real ip, got %q", got)
	}
}

func TestClientIPStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:41234"

	if got := ClientIP(req); got != "198.51.100.2" {
		t.Fatalf("expected bare address, got %q", got)
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/8", "not-an-ip"}); err == nil {
		t.Fatal("expected error")
	}
}
