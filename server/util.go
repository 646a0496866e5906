package server

import (
	"net/http"
	"strings"
)

// checkOrigin validates WebSocket origin against configured allowed origins
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow requests with no origin header (e.g., direct WebSocket clients, testing)
	if origin == "" {
		return true
	}

	// Prefix matching allows any port number
	for _, allowed := range s.config().GetServerAllowedOrigins() {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// extractPathParts extracts path segments after removing a prefix
func extractPathParts(urlPath, prefix string) []string {
	return strings.Split(strings.Trim(strings.TrimPrefix(urlPath, prefix), "/"), "/")
}
