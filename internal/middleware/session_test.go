package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/tenantdesk/internal/logger"
)

func upperKey(cookie string) string { return "key-" + cookie }

func TestSessionStoresCookieAndPrincipal(t *testing.T) {
	var (
		cookie, principal, logged string
		ok                        bool
	)
	handler := Session("session", upperKey)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		cookie, ok = SessionCookie(r.Context())
		principal, _ = PrincipalKey(r.Context())
		logged = logger.Principal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.AddCookie(&http.Cookie{Name: "session", Value: "abc"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !ok || cookie != "abc" {
		t.Fatalf("expected cookie abc, got %q ok=%v", cookie, ok)
	}
	if principal != "key-abc" || logged != "key-abc" {
		t.Fatalf("expected principal key-abc, got %q / %q", principal, logged)
	}
}

func TestSessionWithoutCookie(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"missing", nil},
		{"other name", &http.Cookie{Name: "sid", Value: "abc"}},
		{"blank", &http.Cookie{Name: "session", Value: " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ok bool
			handler := Session("session", upperKey)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				_, ok = SessionCookie(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if ok {
				t.Fatal("expected no session in context")
			}
		})
	}
}
