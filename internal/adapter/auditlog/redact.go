package auditlog

import "net/http"

var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Api-Key":             {},
	"X-Api-Key":           {},
	"X-Auth-Token":        {},
	"Cookie":              {},
	"Set-Cookie":          {},
}

// Redact reports whether a header value must be masked in the audit log
func Redact(name string) bool {
	_, ok := sensitiveHeaders[http.CanonicalHeaderKey(name)]
	return ok
}
