package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/FocuswithJustin/JuniperBot/internal/logging"
)

// MinAPIKeyLength is the shortest API key ValidateAuthConfig accepts.
const MinAPIKeyLength = 16

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

// AuthMiddleware requires a valid X-API-Key header when auth is enabled.
// Websocket clients may pass the key as the api_key query parameter.
// Public endpoints (/, /health) always bypass authentication.
func AuthMiddleware(authCfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authCfg.Enabled || isPublicEndpoint(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" && r.URL.Path == "/ws" {
			apiKey = r.URL.Query().Get("api_key")
		}
		if apiKey == "" {
			logging.SecurityEvent("unauthorized_request", "auth",
				"path", r.URL.Path,
				"reason", "missing API key")
			respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing X-API-Key header")
			return
		}
		if !validKey(apiKey, authCfg.APIKeys) {
			logging.SecurityEvent("unauthorized_request", "auth",
				"path", r.URL.Path,
				"reason", "invalid API key")
			respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isPublicEndpoint(path string) bool {
	return path == "/" || path == "/health"
}

// ValidateAuthConfig rejects enabled auth without usable keys.
func ValidateAuthConfig(cfg AuthConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if len(cfg.APIKeys) == 0 {
		return fmt.Errorf("API key is required when authentication is enabled")
	}
	for i, key := range cfg.APIKeys {
		if len(key) < MinAPIKeyLength {
			return fmt.Errorf("API key %d must be at least %d characters (got %d)", i+1, MinAPIKeyLength, len(key))
		}
	}
	return nil
}

// validKey compares candidate against every key in constant time.
func validKey(candidate string, keys []string) bool {
	ok := 0
	for _, key := range keys {
		ok |= subtle.ConstantTimeCompare([]byte(candidate), []byte(key))
	}
	return ok == 1
}
