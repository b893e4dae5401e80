package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/thushan/llamatap/internal/core/domain"
)

// LoadProvidersFile reads a .json, .yaml or .yml provider file
func LoadProvidersFile(path string) (domain.ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read providers file %s: %w", path, err)
	}
	return ParseProviders(data, filepath.Ext(path))
}

func ParseProviders(data []byte, ext string) (domain.ProvidersConfig, error) {
	var cfg domain.ProvidersConfig
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid providers yaml: %w", err)
		}
	case ".json", "":
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid providers json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported providers file extension %q", ext)
	}
	return cfg, nil
}
