package main

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"

	"github.com/guardian/jobpanel/common/helpers"
)

// probes from the cluster carry no credentials
const unauthenticatedPath = "/healthcheck"

/**
wraps next so that every request (including the websocket handshake) needs the configured credentials
*/
func BasicAuthMiddleware(config helpers.HttpAuthConfig, next http.Handler) http.Handler {
	challenge := fmt.Sprintf(`Basic realm="%s"`, config.Realm)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == unauthenticatedPath {
			next.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(config.Username)) == 1
		passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(config.Password)) == 1

		if !ok || !userMatch || !passwordMatch {
			if ok {
				log.Printf("WARNING rejected credentials for user %s from %s", username, r.RemoteAddr)
			}
			w.Header().Set("WWW-Authenticate", challenge)
			helpers.WriteJsonError("authentication required", w, 401)
			return
		}
		next.ServeHTTP(w, r)
	})
}
