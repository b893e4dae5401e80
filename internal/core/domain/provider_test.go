package domain

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProvider_Hostname(t *testing.T) {
	p := &Provider{BaseURL: "https://api.example.com:8443/v1"}
	assert.Equal(t, "api.example.com", p.Hostname())

	plain := &Provider{BaseURL: "http://localhost:11434"}
	assert.Equal(t, "localhost", plain.Hostname())
}

func TestProvider_Identifier(t *testing.T) {
	p := &Provider{Name: "ollama"}
	assert.Equal(t, "ollama/gpt-oss", p.Identifier("gpt-oss"))
}

func TestHeaderRules_IsEmpty(t *testing.T) {
	var nilRules *HeaderRules
	assert.True(t, nilRules.IsEmpty())
	assert.True(t, (&HeaderRules{}).IsEmpty())
	assert.False(t, (&HeaderRules{Remove: []string{"X-Foo"}}).IsEmpty())
}

func TestModelError(t *testing.T) {
	err := NewUnknownModelError("nope/nope")
	assert.True(t, errors.Is(err, ErrUnknownModel))
	assert.Contains(t, err.Error(), "Unsupported or Unknown Model")
	assert.Contains(t, err.Error(), "nope/nope")
}

func TestFlattenHeaders(t *testing.T) {
	h := http.Header{}
	h.Add("Accept", "a")
	h.Add("Accept", "b")
	h.Set("Authorization", "Bearer secret")

	out := FlattenHeaders(h, func(name string) bool { return name == "Authorization" })
	assert.Equal(t, "a, b", out["Accept"])
	assert.Equal(t, "[REDACTED]", out["Authorization"])

	assert.Nil(t, FlattenHeaders(http.Header{}, nil))
}
