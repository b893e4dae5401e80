package core

import (
	"net/http"
	"strings"

	"github.com/thushan/llamatap/internal/core/constants"
)

// AcceptEncoding advertises only what NewDecoder can undo
const AcceptEncoding = "gzip, deflate, br, zstd"

var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// recomputed for the outbound request, never copied from the client
var outboundSkip = map[string]struct{}{
	"Host":            {},
	"Content-Length":  {},
	"Accept-Encoding": {},
	"X-Request-Id":    {},
	"Expect":          {},
}

// relayed body is decompressed so these no longer describe it
var responseSkip = map[string]struct{}{
	"Content-Encoding": {},
	"Content-Length":   {},
}

// CopyHeaders copies client headers onto the outbound request. Authorization is forwarded
// as-is; provider header rules decide what the upstream finally sees.
func CopyHeaders(dst, src http.Header) {
	connectionTokens := connectionListed(src)
	for name, values := range src {
		canonical := http.CanonicalHeaderKey(name)
		if isHopByHopHeader(canonical) {
			continue
		}
		if _, skip := outboundSkip[canonical]; skip {
			continue
		}
		if _, listed := connectionTokens[canonical]; listed {
			continue
		}
		dst[canonical] = append([]string(nil), values...)
	}
	dst.Set("Accept-Encoding", AcceptEncoding)
}

// CopyResponseHeaders copies upstream response headers to the client, minus the ones
// that stop being true once the body has been decompressed
func CopyResponseHeaders(dst, src http.Header) {
	connectionTokens := connectionListed(src)
	for name, values := range src {
		canonical := http.CanonicalHeaderKey(name)
		if isHopByHopHeader(canonical) {
			continue
		}
		if _, skip := responseSkip[canonical]; skip {
			continue
		}
		if _, listed := connectionTokens[canonical]; listed {
			continue
		}
		dst[canonical] = append([]string(nil), values...)
	}
}

func isHopByHopHeader(canonical string) bool {
	_, ok := hopByHopHeaders[canonical]
	return ok
}

// connectionListed collects header names a sender marked hop-by-hop via Connection (RFC 7230 6.1)
func connectionListed(h http.Header) map[string]struct{} {
	values := h.Values("Connection")
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]struct{})
	for _, v := range values {
		for _, token := range strings.Split(v, ",") {
			if token = strings.TrimSpace(token); token != "" {
				out[http.CanonicalHeaderKey(token)] = struct{}{}
			}
		}
	}
	return out
}

// SetRequestID stamps the id on both directions of the exchange
func SetRequestID(h http.Header, requestID string) {
	h.Set(constants.HeaderRequestID, requestID)
}
