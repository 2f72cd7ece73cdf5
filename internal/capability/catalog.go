package capability

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Capabilities []catalogEntry `yaml:"capabilities"`
}

type catalogEntry struct {
	ID          string                 `yaml:"id"`
	Description string                 `yaml:"description"`
	Parameters  map[string]interface{} `yaml:"parameters"`
}

// LoadCatalog reads a YAML capability catalog from disk.
func LoadCatalog(path string) ([]schemas.Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capability catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML capability catalog. Parameter schemas are
// written as YAML and stored as JSON.
func ParseCatalog(data []byte) ([]schemas.Capability, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse capability catalog YAML: %w", err)
	}

	caps := make([]schemas.Capability, 0, len(file.Capabilities))
	for i, entry := range file.Capabilities {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("capability catalog entry %d has no id", i)
		}
		c := schemas.Capability{ID: id, Description: strings.TrimSpace(entry.Description)}
		if entry.Parameters != nil {
			raw, err := json.Marshal(entry.Parameters)
			if err != nil {
				return nil, fmt.Errorf("capability %q has an unencodable parameter schema: %w", id, err)
			}
			c.ParameterSchema = raw
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// DefaultCatalog returns the built-in desktop capability set.
func DefaultCatalog() []schemas.Capability {
	caps, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in capability catalog is invalid: %v", err))
	}
	return caps
}
