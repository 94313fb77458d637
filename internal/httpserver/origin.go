package httpserver

import (
	"net/http"
	"strings"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/origin"
)

// withOriginPolicy rejects browser requests from origins outside the allow
// list and sets CORS headers for the ones it admits.
func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		originHeader := strings.TrimSpace(r.Header.Get("Origin"))
		if originHeader == "" {
			next(w, r)
			return
		}

		if !s.origins.Check(originHeader, r.Host) {
			s.log.Debug("http request rejected: origin not allowed", "path", r.URL.Path, "origin", originHeader)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		normalizedOrigin, _, _ := origin.NormalizeHeader(originHeader)

		w.Header().Set("Access-Control-Allow-Origin", normalizedOrigin)
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Add("Vary", "Origin")

		next(w, r)
	}
}
