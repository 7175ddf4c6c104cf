package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebURL(t *testing.T) {
	tests := []struct {
		target string
		port   int
		want   string
	}{
		{"example.com", 443, "https://example.com"},
		{"example.com", 8080, "http://example.com:8080"},
		{"example.com", 8443, "https://example.com:8443"},
		{"example.com", 80, "http://example.com"},
		{"10.0.0.5", 80, "http://10.0.0.5"},
		{"10.0.0.5", 3000, "http://10.0.0.5:3000"},
		{"::1", 80, "http://[::1]"},
		{"::1", 9000, "http://[::1]:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, WebURL(tt.target, tt.port))
		})
	}
}
