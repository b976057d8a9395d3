package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders  = "Authorization, Content-Type, Idempotency-Key, X-Business-Id, X-Request-ID"
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsExposeHeaders = "X-Request-ID"
)

// originMatcher holds exact origins plus "scheme://*.domain" suffix rules so
// a contractor can embed the wizard on any of its subdomains.
type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string // "https://" + ".acme.example"
}

func newOriginMatcher(allowed []string) originMatcher {
	m := originMatcher{exact: map[string]struct{}{}}
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			m.any = true
		case strings.Contains(origin, "://*."):
			m.suffixes = append(m.suffixes, origin)
		default:
			m.exact[origin] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if m.any {
		return true
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, rule := range m.suffixes {
		scheme, domain, _ := strings.Cut(rule, "://*")
		rest, ok := strings.CutPrefix(origin, scheme+"://")
		if ok && strings.HasSuffix(rest, domain) && len(rest) > len(domain) {
			return true
		}
	}
	return false
}

// CORS lets contractor sites call the wizard API from their own pages.
// Entries may be exact origins, "https://*.example.com" patterns, or "*".
// Preflights from origins outside the list are refused.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	match := newOriginMatcher(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := match.allows(origin)
			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
