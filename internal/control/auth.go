package control

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractToken pulls the client token from the request. It checks, in
// order: Authorization: Bearer <token>, X-API-Key header, api_key query
// param (the query form exists for WebSocket clients that cannot set
// headers).
func ExtractToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// authorize accepts a request only when its token matches the
// configured one. An unset server token rejects everything; the caller
// is expected to have generated one.
func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return false
	}
	token := ExtractToken(r)
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}
