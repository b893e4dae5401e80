package domain

import (
	"net/url"
)

// HeaderRules are applied add, then replace, then remove
type HeaderRules struct {
	Add     map[string]string `json:"add,omitempty" yaml:"add,omitempty"`
	Replace map[string]string `json:"replace,omitempty" yaml:"replace,omitempty"`
	Remove  []string          `json:"remove,omitempty" yaml:"remove,omitempty"`
}

func (r *HeaderRules) IsEmpty() bool {
	return r == nil || (len(r.Add) == 0 && len(r.Replace) == 0 && len(r.Remove) == 0)
}

type ModelSpec struct {
	Temperature *float64
	Key         string
	ModelName   string
}

func (m ModelSpec) HasTemperature() bool {
	return m.Temperature != nil
}

type ModelsKind int

const (
	// ModelsNested came from an explicit "models" block
	ModelsNested ModelsKind = iota
	// ModelsFlattened came from non-reserved keys directly under the provider
	ModelsFlattened
)

func (k ModelsKind) String() string {
	if k == ModelsFlattened {
		return "flattened"
	}
	return "nested"
}

// Models is decided once at load and never re-inferred per request
type Models struct {
	Entries map[string]ModelSpec
	Kind    ModelsKind
}

// Provider is immutable once it is part of a published registry table
type Provider struct {
	HeaderRules     *HeaderRules
	Properties      map[string]string
	Models          Models
	Name            string
	BaseURL         string
	CompletionsPath string
	APIKey          string
}

// Property looks up a scalar provider field for {placeholder} substitution
func (p *Provider) Property(name string) (string, bool) {
	v, ok := p.Properties[name]
	return v, ok
}

func (p *Provider) Identifier(modelKey string) string {
	return p.Name + "/" + modelKey
}

func (p *Provider) Hostname() string {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ProvidersConfig is the parsed provider file: provider name to raw fields
type ProvidersConfig map[string]map[string]any

// CertConfig is one entry of the certificate file
type CertConfig struct {
	Hostname string `json:"hostname" yaml:"hostname"`
	CertPath string `json:"certPath,omitempty" yaml:"certPath,omitempty"`
	Must     bool   `json:"must" yaml:"must"`
}
