package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/contractor-booking/internal/http/sessiontoken"
)

func sessionRouter(t *testing.T, iss *sessiontoken.Issuer) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Use(SessionAuth(iss, "id"))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			claims, ok := SessionClaimsFromContext(r.Context())
			if !ok || claims.BusinessID != "biz_1" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func testIssuer(t *testing.T) *sessiontoken.Issuer {
	t.Helper()
	iss, err := sessiontoken.NewIssuer("secret", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return iss
}

func TestSessionAuthMissingHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sessionRouter(t, testIssuer(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/sess_1/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestSessionAuthValidToken(t *testing.T) {
	iss := testIssuer(t)
	tok, err := iss.Issue("sess_1", "biz_1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/sessions/sess_1/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()

	sessionRouter(t, iss).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestSessionAuthQueryToken(t *testing.T) {
	iss := testIssuer(t)
	tok, _ := iss.Issue("sess_1", "biz_1")
	rec := httptest.NewRecorder()

	sessionRouter(t, iss).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/sess_1/?access_token="+tok, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestSessionAuthRejectsOtherSession(t *testing.T) {
	iss := testIssuer(t)
	tok, _ := iss.Issue("sess_2", "biz_1")
	req := httptest.NewRequest(http.MethodGet, "/sessions/sess_1/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()

	sessionRouter(t, iss).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestSessionAuthNilVerifier(t *testing.T) {
	rec := httptest.NewRecorder()
	SessionAuth(nil, "id")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
