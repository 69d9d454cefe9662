package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/coreybb/signet/webutil"
)

// SetHeader is a middleware to set a response header.
func SetHeader(key, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(key, value)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireBearerToken rejects requests whose Authorization header does not
// carry token. An empty token disables the check.
func RequireBearerToken(token string) func(http.Handler) http.Handler {
	if token == "" {
		log.Println("WARNING: ADMIN_API_TOKEN not set. The management API is unauthenticated.")
		return func(next http.Handler) http.Handler { return next }
	}
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get(webutil.HeaderAuthorization), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="signet"`)
				webutil.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
