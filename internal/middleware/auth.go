package middleware

import (
	"crypto/subtle"
	"net/http"
)

const (
	// APIKeyHeader carries the key for API clients.
	APIKeyHeader = "X-API-Key"
	// APIKeyCookie carries the key for browsers, where the viewer socket
	// cannot set headers.
	APIKeyCookie = "api_key"
)

// APIKeyMiddleware sprawdza klucz API w nagłówku albo w cookie.
// Pusty klucz wyłącza sprawdzanie.
func APIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validKey(r, apiKey) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validKey(r *http.Request, apiKey string) bool {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		if cookie, err := r.Cookie(APIKeyCookie); err == nil {
			key = cookie.Value
		}
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1
}
