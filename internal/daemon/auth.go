package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"meetcap/internal/logging"
)

// guard wraps next with bearer-token checks when paths.api_token is set.
// Failed attempts are logged with the caller address, never the token.
func (s *apiServer) guard(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	want := []byte(s.token)
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			s.log().Debug("rejected unauthenticated request",
				logging.String("path", r.URL.Path),
				logging.String("remote", r.RemoteAddr),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="meetcap"`)
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
