package api

import (
	"testing"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/database"
	"delta-trading-bot/internal/events"
)

// TestRouteRegistration verifies the API surface stays wired: every
// operational endpoint must be reachable on the router.
func TestRouteRegistration(t *testing.T) {
	s := NewServer(
		config.ServerConfig{AllowedOrigins: "*"},
		config.StrategyConfig{},
		&database.DB{},
		events.NewEventBus(),
		nil,
		nil,
	)

	want := map[string]string{
		"/health":                    "GET",
		"/api/auth/login":            "POST",
		"/api/auth/status":           "GET",
		"/api/trading/trigger-cycle": "POST",
		"/api/trading/state":         "GET",
		"/api/trading/pending":       "GET",
		"/api/trades":                "GET",
		"/api/strategy-configs":      "GET",
		"/api/strategy-configs/:id":  "GET",
		"/api/ws":                    "GET",
	}

	registered := make(map[string]bool)
	for _, route := range s.router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for path, method := range want {
		if !registered[method+" "+path] {
			t.Errorf("Expected route %s %s to be registered", method, path)
		}
	}
}
