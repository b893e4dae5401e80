package registry

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/thushan/llamatap/internal/core/constants"
	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/util"
)

const (
	keyBaseURL           = "baseUrl"
	keyCompletionsPath   = "completionsPath"
	keyAPIKey            = "apiKey"
	keyCustomHeaderRules = "customHeaderRules"
	keyModels            = "models"

	keyModelName   = "modelName"
	keyTemperature = "temperature"
)

var reservedKeys = map[string]struct{}{
	keyBaseURL:           {},
	keyCompletionsPath:   {},
	keyAPIKey:            {},
	keyCustomHeaderRules: {},
	keyModels:            {},
}

// Table is an immutable snapshot of every provider, swapped whole on reload
type Table struct {
	LoadedAt  time.Time
	providers map[string]*domain.Provider
	models    int
}

// Build parses every provider fully in memory. Nothing is published until it succeeds.
func Build(raw domain.ProvidersConfig) (*Table, error) {
	table := &Table{
		providers: make(map[string]*domain.Provider, len(raw)),
		LoadedAt:  time.Now(),
	}

	for name, fields := range raw {
		provider, err := buildProvider(name, fields)
		if err != nil {
			return nil, err
		}
		table.providers[name] = provider
		table.models += len(provider.Models.Entries)
	}

	if table.models == 0 {
		return nil, domain.NewConfigError("providers", len(raw), "no resolvable models configured")
	}
	return table, nil
}

func buildProvider(name string, fields map[string]any) (*domain.Provider, error) {
	if name == "" || strings.Contains(name, constants.ModelIdentifierSeparator) {
		return nil, domain.NewConfigError("provider", name, "name must be non-empty and must not contain '/'")
	}

	baseURL, _ := fields[keyBaseURL].(string)
	baseURL = util.NormaliseBaseURL(baseURL)
	if baseURL == "" {
		return nil, domain.NewConfigError(name+"."+keyBaseURL, fields[keyBaseURL], "is required")
	}

	completionsPath, _ := fields[keyCompletionsPath].(string)
	if completionsPath == "" {
		completionsPath = constants.DefaultCompletionsPath
	}
	apiKey, _ := fields[keyAPIKey].(string)

	provider := &domain.Provider{
		Name:            name,
		BaseURL:         baseURL,
		CompletionsPath: completionsPath,
		APIKey:          apiKey,
		Properties:      scalarProperties(fields),
	}

	if rawRules, ok := fields[keyCustomHeaderRules]; ok && rawRules != nil {
		rules, err := parseHeaderRules(rawRules)
		if err != nil {
			return nil, domain.NewConfigError(name+"."+keyCustomHeaderRules, rawRules, err.Error())
		}
		provider.HeaderRules = rules
	}

	models, err := parseModels(name, fields)
	if err != nil {
		return nil, err
	}
	provider.Models = models
	return provider, nil
}

// parseModels picks the nested form when a models block exists, otherwise flattens
// every non-reserved object-valued key into a model entry
func parseModels(provider string, fields map[string]any) (domain.Models, error) {
	if nested, ok := fields[keyModels]; ok {
		table, ok := nested.(map[string]any)
		if !ok {
			return domain.Models{}, domain.NewConfigError(provider+"."+keyModels, nested, "must be an object")
		}
		entries, err := parseModelEntries(provider, table)
		return domain.Models{Kind: domain.ModelsNested, Entries: entries}, err
	}

	flattened := make(map[string]any)
	for key, value := range fields {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		if _, isObject := value.(map[string]any); isObject {
			flattened[key] = value
		}
	}
	entries, err := parseModelEntries(provider, flattened)
	return domain.Models{Kind: domain.ModelsFlattened, Entries: entries}, err
}

func parseModelEntries(provider string, raw map[string]any) (map[string]domain.ModelSpec, error) {
	entries := make(map[string]domain.ModelSpec, len(raw))
	for key, value := range raw {
		field := provider + "." + key
		if key == "" || strings.Contains(key, constants.ModelIdentifierSeparator) {
			return nil, domain.NewConfigError(field, key, "model key must be non-empty and must not contain '/'")
		}

		spec := domain.ModelSpec{Key: key, ModelName: key}
		switch v := value.(type) {
		case string:
			// shorthand: "gpt": "gpt-4o-mini"
			if v != "" {
				spec.ModelName = v
			}
		case map[string]any:
			if name, ok := v[keyModelName].(string); ok && name != "" {
				spec.ModelName = name
			}
			if rawTemp, ok := v[keyTemperature]; ok && rawTemp != nil {
				temp, ok := toFloat(rawTemp)
				if !ok || math.IsNaN(temp) || temp < 0 {
					return nil, domain.NewConfigError(field+"."+keyTemperature, rawTemp, "must be a non-negative number")
				}
				spec.Temperature = &temp
			}
		default:
			return nil, domain.NewConfigError(field, value, "model entry must be an object or a model name")
		}
		entries[key] = spec
	}
	return entries, nil
}

func parseHeaderRules(raw any) (*domain.HeaderRules, error) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var rules domain.HeaderRules
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	if rules.IsEmpty() {
		return nil, nil
	}
	return &rules, nil
}

// scalarProperties exposes every scalar provider field for {placeholder} lookup
func scalarProperties(fields map[string]any) map[string]string {
	props := make(map[string]string, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			props[key] = v
		case bool:
			props[key] = strconv.FormatBool(v)
		case map[string]any, []any, nil:
			continue
		default:
			if f, ok := toFloat(v); ok {
				props[key] = strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
	}
	return props
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Lookup resolves provider/modelKey; anything else is ErrUnknownModel
func (t *Table) Lookup(identifier string) (*domain.Provider, domain.ModelSpec, error) {
	if strings.Count(identifier, constants.ModelIdentifierSeparator) != 1 {
		return nil, domain.ModelSpec{}, domain.NewUnknownModelError(identifier)
	}
	providerName, modelKey, _ := strings.Cut(identifier, constants.ModelIdentifierSeparator)
	if providerName == "" || modelKey == "" {
		return nil, domain.ModelSpec{}, domain.NewUnknownModelError(identifier)
	}

	provider, ok := t.providers[providerName]
	if !ok {
		return nil, domain.ModelSpec{}, domain.NewUnknownModelError(identifier)
	}
	spec, ok := provider.Models.Entries[modelKey]
	if !ok {
		return nil, domain.ModelSpec{}, domain.NewUnknownModelError(identifier)
	}
	return provider, spec, nil
}

func (t *Table) Identifiers() []string {
	ids := make([]string, 0, t.models)
	for _, p := range t.providers {
		for key := range p.Models.Entries {
			ids = append(ids, p.Identifier(key))
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *Table) Providers() []*domain.Provider {
	out := make([]*domain.Provider, 0, len(t.providers))
	for _, p := range t.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Table) ModelCount() int {
	return t.models
}

func (t *Table) String() string {
	return fmt.Sprintf("%d providers, %d models", len(t.providers), t.models)
}
