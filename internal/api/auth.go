package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const authRealm = "configkv"

// BearerAuth guards the config routes with a static token. The scheme name
// is matched case-insensitively. Failures answer 401 with a WWW-Authenticate
// challenge: a request without credentials gets a bare challenge, one with a
// wrong scheme or token gets error="invalid_token".
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, present := bearerToken(r)
			switch {
			case !present:
				challenge(w, "")
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing bearer token")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				slog.Debug("rejected config API request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
				challenge(w, "invalid_token")
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid bearer token")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// bearerToken extracts the credentials of a Bearer Authorization header.
// present is false only when the header is absent or empty; any other
// scheme yields present with an empty token.
func bearerToken(r *http.Request) (tok string, present bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", false
	}
	scheme, rest, _ := strings.Cut(auth, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(rest), true
}

func challenge(w http.ResponseWriter, errCode string) {
	v := fmt.Sprintf("Bearer realm=%q", authRealm)
	if errCode != "" {
		v += fmt.Sprintf(", error=%q", errCode)
	}
	w.Header().Set("WWW-Authenticate", v)
}
