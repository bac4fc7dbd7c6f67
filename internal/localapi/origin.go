package localapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/golang/glog"
)

// originPolicy admits requests with no Origin header (the CLI, curl),
// pages served from the API's own host and the configured front-end
// origins. CORS alone only withholds response headers, so browsers on
// other sites could still post to the API without this check.
type originPolicy struct {
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return originPolicy{allowed: allowed}
}

func (p originPolicy) allows(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := p.allowed[strings.TrimRight(origin, "/")]; ok {
		return true
	}
	parsed, err := url.Parse(origin)
	return err == nil && strings.EqualFold(parsed.Host, r.Host)
}

func (p originPolicy) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.allows(r) {
			glog.Warningf("rejected %s %s from origin %q", r.Method, r.URL.Path, r.Header.Get("Origin"))
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "origin not allowed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
