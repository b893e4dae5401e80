package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/thushan/llamatap/internal/core/domain"
)

func ptr(f float64) *float64 { return &f }

func TestRewriteBody(t *testing.T) {
	withDefault := domain.ModelSpec{Key: "gpt-oss", ModelName: "gpt-oss:20b", Temperature: ptr(0.7)}
	noDefault := domain.ModelSpec{Key: "llama", ModelName: "llama3.1:8b"}

	tests := []struct {
		name     string
		body     string
		spec     domain.ModelSpec
		wantTemp any
	}{
		{"client value kept", `{"model":"ollama/gpt-oss","temperature":0.2}`, withDefault, 0.2},
		{"zero is valid", `{"model":"ollama/gpt-oss","temperature":0}`, withDefault, 0.0},
		{"missing uses default", `{"model":"ollama/gpt-oss"}`, withDefault, 0.7},
		{"negative uses default", `{"model":"ollama/gpt-oss","temperature":-1}`, withDefault, 0.7},
		{"string uses default", `{"model":"ollama/gpt-oss","temperature":"hot"}`, withDefault, 0.7},
		{"null uses default", `{"model":"ollama/gpt-oss","temperature":null}`, withDefault, 0.7},
		{"invalid without default is dropped", `{"model":"ollama/llama","temperature":-0.5}`, noDefault, nil},
		{"missing without default stays missing", `{"model":"ollama/llama"}`, noDefault, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := RewriteBody([]byte(tt.body), tt.spec)
			require.NoError(t, err)

			assert.Equal(t, tt.spec.ModelName, gjson.GetBytes(out, "model").String())
			temp := gjson.GetBytes(out, "temperature")
			if tt.wantTemp == nil {
				assert.False(t, temp.Exists(), string(out))
				return
			}
			assert.InDelta(t, tt.wantTemp, temp.Float(), 1e-9)
		})
	}
}

func TestRewriteBody_PreservesOtherFields(t *testing.T) {
	body := `{"model":"ollama/gpt-oss","messages":[{"role":"user","content":"hi"}],"stream":true,"max_tokens":64}`
	out, err := RewriteBody([]byte(body), domain.ModelSpec{ModelName: "gpt-oss:20b"})
	require.NoError(t, err)

	assert.Equal(t, `{"model":"gpt-oss:20b","messages":[{"role":"user","content":"hi"}],"stream":true,"max_tokens":64}`, string(out))
}

func TestValidTemperature(t *testing.T) {
	assert.True(t, ValidTemperature(gjson.Parse("1.5")))
	assert.True(t, ValidTemperature(gjson.Parse("0")))
	assert.False(t, ValidTemperature(gjson.Parse("-0.1")))
	assert.False(t, ValidTemperature(gjson.Parse(`"1"`)))
	assert.False(t, ValidTemperature(gjson.Result{}))
}
