package server

import (
	"net/http"
)

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME-sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// The API never renders in a frame
		w.Header().Set("X-Frame-Options", "DENY")

		// Responses carry live home state
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
