package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFindLimit(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), nil)

	tests := []struct {
		method  string
		path    string
		pattern string
		limited bool
	}{
		{"POST", "/room", "POST /room", true},
		{"POST", "/room/0198d2c0-1111-7000-8000-000000000000/join", "POST /room/join", true},
		{"POST", "/room/0198d2c0-1111-7000-8000-000000000000/messages", "POST /room/messages", true},
		{"GET", "/room/0198d2c0-1111-7000-8000-000000000000/messages", "GET /room/messages", true},
		{"GET", "/room/0198d2c0-1111-7000-8000-000000000000/events", "GET /room/events", true},
		{"GET", "/room/0198d2c0-1111-7000-8000-000000000000/ttl", "GET /room/ttl", true},
		{"DELETE", "/room/0198d2c0-1111-7000-8000-000000000000", "DELETE /room", true},
		{"DELETE", "/room/0198d2c0-1111-7000-8000-000000000000/", "DELETE /room", true},
		{"GET", "/health", "", false},
		{"GET", "/metrics", "", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		pattern, _, ok := rl.findLimit(r)
		require.Equal(t, tt.limited, ok, "%s %s", tt.method, tt.path)
		if tt.limited {
			require.Equal(t, tt.pattern, pattern)
		}
	}
}

func TestWhitelist(t *testing.T) {
	req := require.New(t)
	rl := NewRateLimiter(nil, zerolog.Nop(), []string{"10.0.0.1", "192.168.0.0/16", "not-an-ip/xx"})

	req.True(rl.isWhitelisted("10.0.0.1"))
	req.True(rl.isWhitelisted("192.168.4.7"))
	req.False(rl.isWhitelisted("10.0.0.2"))
	req.False(rl.isWhitelisted("172.16.0.1"))
	req.False(rl.isWhitelisted("garbage"))
}
