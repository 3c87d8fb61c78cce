package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken rejects requests whose bearer token differs from token. An
// empty token rejects every request.
func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="billmatch"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing bearer token")
				return
			}
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
