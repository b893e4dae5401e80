package util

import (
	"net/url"
	"path"
	"strings"
)

// JoinUpstreamURL appends a provider's completions path to its base URL, keeping any path
// prefix on the base. An absolute completions path wins outright.
//
//	JoinUpstreamURL("http://localhost:11434", "/v1/chat/completions") -> "http://localhost:11434/v1/chat/completions"
//	JoinUpstreamURL("https://gw.example.com/openai/", "chat/completions") -> "https://gw.example.com/openai/chat/completions"
func JoinUpstreamURL(baseURL, completionsPath string) (string, error) {
	if completionsPath != "" {
		if parsed, err := url.Parse(completionsPath); err == nil && parsed.IsAbs() {
			return completionsPath, nil
		}
	}

	base, err := url.Parse(NormaliseBaseURL(baseURL))
	if err != nil {
		return "", err
	}
	if completionsPath == "" {
		return base.String(), nil
	}

	rel, query, _ := strings.Cut(completionsPath, "?")
	base.Path = path.Join("/", base.Path, rel)
	if query != "" {
		if base.RawQuery != "" {
			base.RawQuery += "&" + query
		} else {
			base.RawQuery = query
		}
	}
	return base.String(), nil
}
