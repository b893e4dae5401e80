package core

import (
	"bytes"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/thushan/llamatap/internal/core/constants"
)

// LimitedCapture keeps the first limit bytes written and silently drops the rest
type LimitedCapture struct {
	buf       []byte
	limit     int
	truncated bool
}

func NewLimitedCapture(limit int) *LimitedCapture {
	if limit <= 0 {
		return &LimitedCapture{}
	}
	return &LimitedCapture{limit: limit, buf: make([]byte, 0, min(limit, 16*1024))}
}

func (lc *LimitedCapture) Write(p []byte) (int, error) {
	remain := lc.limit - len(lc.buf)
	if remain <= 0 {
		if len(p) > 0 {
			lc.truncated = true
		}
		return len(p), nil
	}
	if len(p) <= remain {
		lc.buf = append(lc.buf, p...)
		return len(p), nil
	}
	lc.buf = append(lc.buf, p[:remain]...)
	lc.truncated = true
	return len(p), nil
}

func (lc *LimitedCapture) Bytes() []byte {
	return lc.buf
}

func (lc *LimitedCapture) Truncated() bool {
	return lc.truncated
}

// IsJSONContentType matches application/json with or without parameters
func IsJSONContentType(contentType string) bool {
	return mediaType(contentType) == constants.ContentTypeJSON
}

func IsTextContentType(contentType string) bool {
	return strings.HasPrefix(mediaType(contentType), constants.ContentTypePrefixText)
}

func mediaType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// LoggableBody turns captured bytes into what goes in the audit record: parsed JSON,
// a string for text, or a tag when the content cannot be shown
func LoggableBody(captured []byte, contentType string) any {
	switch {
	case IsJSONContentType(contentType):
		if len(bytes.TrimSpace(captured)) == 0 {
			return nil
		}
		var v any
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(captured, &v); err != nil {
			return constants.BodyTagMalformedJSON
		}
		return v
	case IsTextContentType(contentType):
		return string(captured)
	default:
		return constants.BodyTagBinary
	}
}
