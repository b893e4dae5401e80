package util

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trust   bool
		want    string
	}{
		{"remote only", "192.168.1.100:12345", nil, false, "192.168.1.100"},
		{"forwarded ignored when untrusted", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.1"}, false, "10.0.0.1"},
		{"forwarded first hop", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.2"}, true, "203.0.113.1"},
		{"real ip", "10.0.0.1:80", map[string]string{"X-Real-IP": " 203.0.113.9 "}, true, "203.0.113.9"},
		{"ipv6", "[::1]:8080", nil, false, "::1"},
		{"no port", "not-an-addr", nil, false, "not-an-addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(req, tt.trust))
		})
	}
}

func TestIsSuccessStatus(t *testing.T) {
	assert.True(t, IsSuccessStatus(200))
	assert.True(t, IsSuccessStatus(299))
	assert.False(t, IsSuccessStatus(199))
	assert.False(t, IsSuccessStatus(300))
	assert.False(t, IsSuccessStatus(503))
}

func TestNormaliseBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", NormaliseBaseURL("http://localhost:11434//"))
	assert.Equal(t, "https://api.example.com/v1", NormaliseBaseURL(" https://api.example.com/v1/ "))
	assert.Equal(t, "", NormaliseBaseURL(""))
	assert.Equal(t, "/", NormaliseBaseURL("/"))
}

func TestShouldUseColors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.False(t, ShouldUseColors())

	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "1")
	assert.True(t, ShouldUseColors())

	t.Setenv("FORCE_COLOR", "")
	t.Setenv("LLAMATAP_FORCE_COLORS", "TRUE")
	assert.True(t, ShouldUseColors())

	t.Setenv("LLAMATAP_FORCE_COLORS", "false")
	assert.False(t, ShouldUseColors())
}
