package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSHandler lets browser clients call the player API. Auth is bearer-only, so no cookies cross origins.
func CORSHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		// Retry-After accompanies 429s from the voucher endpoints
		ExposedHeaders: []string{"Retry-After", requestIDHeader},
		MaxAge:         600,
	})
}
