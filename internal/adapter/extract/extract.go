// Package extract pulls plain text out of chat completion requests and responses for token counting
package extract

import (
	"bytes"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/thushan/llamatap/internal/core/constants"
)

var (
	ErrEmptyBody      = errors.New("empty request body")
	ErrInvalidJSON    = errors.New("request body is not valid JSON")
	ErrMissingModel   = errors.New("model field is required")
	ErrModelNotString = errors.New("model field must be a string")
)

var (
	sseDataPrefix = []byte("data:")
	sseDone       = []byte("[DONE]")
)

// ModelField validates the body as JSON and returns its top-level model string
func ModelField(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", ErrEmptyBody
	}
	if !gjson.ValidBytes(body) {
		return "", ErrInvalidJSON
	}

	result := gjson.GetBytes(body, "model")
	if !result.Exists() {
		return "", ErrMissingModel
	}
	// gjson would happily stringify numbers and objects
	if result.Type != gjson.String {
		return "", ErrModelNotString
	}
	return result.Str, nil
}

// PromptText joins the text of every message, including the text parts of multimodal content.
// Legacy completion bodies with a "prompt" field are handled too.
func PromptText(body []byte) string {
	var b strings.Builder

	messages := gjson.GetBytes(body, "messages")
	if messages.IsArray() {
		messages.ForEach(func(_, msg gjson.Result) bool {
			appendContent(&b, msg.Get("content"))
			return true
		})
	}

	if prompt := gjson.GetBytes(body, "prompt"); prompt.Exists() {
		appendContent(&b, prompt)
	}
	return b.String()
}

func appendContent(b *strings.Builder, content gjson.Result) {
	switch {
	case content.Type == gjson.String:
		appendLine(b, content.Str)
	case content.IsArray():
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Type == gjson.String {
				appendLine(b, part.Str)
				return true
			}
			if text := part.Get("text"); text.Type == gjson.String {
				appendLine(b, text.Str)
			}
			return true
		})
	}
}

func appendLine(b *strings.Builder, s string) {
	if s == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(s)
}

// CompletionText picks the assistant text out of a response body: SSE deltas for event
// streams, choices[].message.content for JSON, and the raw text for anything else
func CompletionText(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}
	if IsEventStream(contentType) || bytes.HasPrefix(bytes.TrimSpace(body), sseDataPrefix) {
		return streamText(body)
	}
	if gjson.ValidBytes(body) {
		return jsonText(body)
	}
	return string(body)
}

func jsonText(body []byte) string {
	var b strings.Builder
	gjson.GetBytes(body, "choices").ForEach(func(_, choice gjson.Result) bool {
		if content := choice.Get("message.content"); content.Exists() {
			appendContent(&b, content)
		} else if text := choice.Get("text"); text.Type == gjson.String {
			appendLine(&b, text.Str)
		}
		return true
	})
	return b.String()
}

func streamText(body []byte) string {
	var b strings.Builder
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, sseDataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(sseDataPrefix):])
		if len(payload) == 0 || bytes.Equal(payload, sseDone) || !gjson.ValidBytes(payload) {
			continue
		}

		gjson.GetBytes(payload, "choices").ForEach(func(_, choice gjson.Result) bool {
			if delta := choice.Get("delta.content"); delta.Type == gjson.String {
				b.WriteString(delta.Str)
			} else if text := choice.Get("text"); text.Type == gjson.String {
				b.WriteString(text.Str)
			}
			return true
		})
	}
	return b.String()
}

func IsEventStream(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), constants.ContentTypeEventStream)
}
