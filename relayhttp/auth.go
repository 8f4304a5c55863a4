package relayhttp

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"torramel/notify-relay/log"
)

// NewTokenAuth guards a handler with a shared bearer token. Trigger and
// admin routes are called by the scheduler and operators only, so a single
// static token is the whole auth model.
func NewTokenAuth(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if token == "" {
			log.Logger.Error("refusing request because no trigger token is configured")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		presented := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, req)
	})
}
