package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOriginMatcher(t *testing.T) {
	m := newOriginMatcher([]string{"https://acme-plumbing.example/", " ", "https://*.sparky.example"})
	cases := []struct {
		origin string
		want   bool
	}{
		{"https://acme-plumbing.example", true},
		{"http://acme-plumbing.example", false},
		{"https://book.sparky.example", true},
		{"https://a.b.sparky.example", true},
		{"https://sparky.example", false},
		{"http://book.sparky.example", false},
		{"https://evilsparky.example", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := m.allows(tc.origin); got != tc.want {
			t.Errorf("allows(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}

	if !newOriginMatcher([]string{"*"}).allows("https://random.example") {
		t.Fatal("expected wildcard to allow any origin")
	}
	if newOriginMatcher(nil).allows("https://random.example") {
		t.Fatal("expected empty list to allow nothing")
	}
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/wizard/sessions", nil)
	req.Header.Set("Origin", "https://acme-plumbing.example")
	rec := httptest.NewRecorder()
	CORS([]string{"https://acme-plumbing.example"})(handler).ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected handler to run, got called=%v status=%d", called, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://acme-plumbing.example" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Fatalf("expected expose headers, got %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin")
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	mw := CORS([]string{"https://acme-plumbing.example"})

	req := httptest.NewRequest(http.MethodGet, "/v1/wizard/sessions", nil)
	req.Header.Set("Origin", "https://unknown.example")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
	if !called {
		t.Fatal("simple requests still reach the handler; the browser enforces CORS")
	}

	called = false
	req = httptest.NewRequest(http.MethodOptions, "/v1/wizard/sessions", nil)
	req.Header.Set("Origin", "https://unknown.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || called {
		t.Fatalf("expected refused preflight, got status=%d called=%v", rec.Code, called)
	}
}

func TestCORSHandlesPreflight(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/wizard/sessions/abc/service", nil)
	req.Header.Set("Origin", "https://book.sparky.example")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()
	CORS([]string{"https://*.sparky.example"})(handler).ServeHTTP(rec, req)

	if called {
		t.Fatalf("expected handler to not be called on preflight")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	headers := rec.Header().Get("Access-Control-Allow-Headers")
	for _, want := range []string{"Authorization", "X-Business-Id", "Idempotency-Key"} {
		if !strings.Contains(headers, want) {
			t.Fatalf("expected %s in allowed headers, got %q", want, headers)
		}
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PUT") {
		t.Fatalf("expected PUT in allowed methods")
	}
}
