package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/room", "/room"},
		{"/room/", "/room/"},
		{"/room/0198d2c0-1111-7000-8000-000000000000", "/room/:id"},
		{"/room/0198d2c0-1111-7000-8000-000000000000/messages", "/room/:id/messages"},
		{"/room/0198d2c0-1111-7000-8000-000000000000/events", "/room/:id/events"},
		{"/room/abc/ttl", "/room/:id/ttl"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/", "/"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
