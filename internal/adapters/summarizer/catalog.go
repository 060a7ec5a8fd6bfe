package summarizer

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var embeddedCatalog []byte

// ProviderSpec описывает OpenAI-совместимого провайдера.
type ProviderSpec struct {
	BaseURL string            `yaml:"base_url"`
	KeyEnv  string            `yaml:"key_env"`
	Model   string            `yaml:"model"`
	Headers map[string]string `yaml:"headers"`
}

// Catalog таблица провайдеров.
type Catalog struct {
	Default   string                  `yaml:"default"`
	Providers map[string]ProviderSpec `yaml:"providers"`
}

// LoadCatalog читает встроенный каталог или файл path, если он задан.
func LoadCatalog(path string) (Catalog, error) {
	raw := embeddedCatalog
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Catalog{}, fmt.Errorf("read providers file: %w", err)
		}
		raw = data
	}
	return ParseCatalog(raw)
}

// ParseCatalog разбирает YAML и проверяет, что провайдер по умолчанию описан.
func ParseCatalog(raw []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse providers: %w", err)
	}
	if len(c.Providers) == 0 {
		return Catalog{}, fmt.Errorf("providers catalog is empty")
	}
	if c.Default == "" {
		c.Default = "gemini"
	}
	if _, ok := c.Providers[c.Default]; !ok {
		return Catalog{}, fmt.Errorf("default provider %q is not described", c.Default)
	}
	for name, spec := range c.Providers {
		if spec.BaseURL == "" || spec.KeyEnv == "" {
			return Catalog{}, fmt.Errorf("provider %q: base_url and key_env are required", name)
		}
	}
	return c, nil
}

// Names возвращает отсортированные идентификаторы.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
