package qrlink

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfiguredBaseWins(t *testing.T) {
	b := NewBuilder("https://events.example.com/")
	r := httptest.NewRequest("GET", "http://ignored.local/v1/activities/x/join", nil)

	assert.Equal(t, "https://events.example.com/a/abc123", b.JoinURL(r, "abc123"))
	assert.Equal(t, "https://events.example.com/login/scan/tok", b.LoginURL(r, "tok"))
}

func TestOriginFromForwardedHeaders(t *testing.T) {
	b := NewBuilder("")
	r := httptest.NewRequest("GET", "http://backend:8080/v1/login/qrcode", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "events.example.com")

	assert.Equal(t, "https://events.example.com/login/scan/tok", b.LoginURL(r, "tok"))
}

func TestOriginFallsBackToRequestHost(t *testing.T) {
	b := NewBuilder("")
	r := httptest.NewRequest("GET", "http://localhost:8080/v1/activities/x/join", nil)

	assert.Equal(t, "http://localhost:8080/a/xy42", b.JoinURL(r, "xy42"))
}

func TestCodeIsPathEscaped(t *testing.T) {
	b := NewBuilder("https://events.example.com")

	assert.Equal(t, "https://events.example.com/a/a%2Fb", b.JoinURL(nil, "a/b"))
}
