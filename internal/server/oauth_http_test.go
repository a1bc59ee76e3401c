package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		baseURL string
		ok      bool
	}{
		{"https://strategy-eval.example.com", true},
		{"http://localhost:8080", true},
		{"http://127.0.0.1:8080", true},
		{"http://[::1]:8080", true},
		{"http://strategy-eval.example.com", false},
		{"http://10.0.0.12:8080", false},
		{"ftp://example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.baseURL, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
		})
	}
}

func TestNewOAuthHTTPServerRejectsConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OAuthConfig
		wantErr string
	}{
		{
			name:    "unknown provider",
			cfg:     OAuthConfig{BaseURL: "https://strategy-eval.example.com", Provider: "github"},
			wantErr: "unsupported OAuth provider",
		},
		{
			name:    "plain http base URL",
			cfg:     OAuthConfig{BaseURL: "http://strategy-eval.example.com", Provider: OAuthProviderDex},
			wantErr: "base URL validation failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOAuthHTTPServer(&ServerContext{}, nil, "/mcp", tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewHTTPServerTimeouts(t *testing.T) {
	srv := NewHTTPServer(":0", http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, defaultReadHeaderTimeout, srv.ReadHeaderTimeout)
	assert.Equal(t, defaultWriteTimeout, srv.WriteTimeout)
	assert.Equal(t, defaultIdleTimeout, srv.IdleTimeout)
}
