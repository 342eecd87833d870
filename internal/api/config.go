package api

// Config holds server configuration.
type Config struct {
	Port              int
	Version           string
	RateLimitRequests int        // Requests per minute per actor (0 = disabled)
	RateLimitBurst    int        // Burst size
	Auth              AuthConfig // Authentication configuration
	AllowedOrigins    []string   // CORS and websocket origins (empty = allow all)
	WebSocket         WebSocketConfig
}

// WebSocketConfig limits interactive connections.
type WebSocketConfig struct {
	MaxMessageRate int   // Client frames per second
	MaxMessageSize int64 // Bytes per client frame
}

// DefaultWebSocketConfig returns the limits used when none are set.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		MaxMessageRate: 10,
		MaxMessageSize: 4096,
	}
}
