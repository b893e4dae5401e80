package util

import (
	"fmt"
	"net"
	"strings"
)

// NormaliseBaseURL trims whitespace and any trailing slashes
func NormaliseBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	for len(baseURL) > 1 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return baseURL
}

// IsPortAvailable checks if a port is available by attempting to bind to it
func IsPortAvailable(host string, port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return false
	}
	defer listener.Close()
	return true
}
