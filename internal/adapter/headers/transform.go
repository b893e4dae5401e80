// Package headers applies a provider's custom header rules to an outbound request
package headers

import (
	"net/http"
	"regexp"
	"sort"

	"github.com/thushan/llamatap/internal/core/domain"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Apply runs add, then replace, then remove. Contradictory rules are not detected,
// the fixed order decides the outcome.
func Apply(h http.Header, provider *domain.Provider) {
	if provider == nil || provider.HeaderRules.IsEmpty() {
		return
	}
	rules := provider.HeaderRules

	for _, name := range sortedKeys(rules.Add) {
		h.Set(name, Substitute(rules.Add[name], provider))
	}

	for _, from := range sortedKeys(rules.Replace) {
		to := rules.Replace[from]
		values := h.Values(from)
		if len(values) == 0 {
			continue
		}
		if http.CanonicalHeaderKey(from) == http.CanonicalHeaderKey(to) {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		h.Del(to)
		for _, v := range copied {
			h.Add(to, v)
		}
		h.Del(from)
	}

	for _, name := range rules.Remove {
		h.Del(name)
	}
}

// Substitute expands {property} from the provider's scalar fields; unknown names become ""
func Substitute(value string, provider *domain.Provider) string {
	return placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := provider.Property(name); ok {
			return v
		}
		return ""
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
