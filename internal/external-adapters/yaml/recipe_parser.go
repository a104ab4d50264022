// Package yaml provides YAML-based recipe parsing and repository implementations.
package yaml

import (
	"fmt"
	"os"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"gopkg.in/yaml.v3"
)

// yamlRecipe represents the raw YAML structure
type yamlRecipe struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	Description  string            `yaml:"description"`
	Licenses     []string          `yaml:"licenses"`
	Source       string            `yaml:"source"`
	URL          string            `yaml:"url"`
	Checksum     string            `yaml:"checksum"`
	Path         string            `yaml:"path"`
	Commit       string            `yaml:"commit"`
	Remotes      map[string]string `yaml:"remotes"`
	Patches      []string          `yaml:"patches"`
	Strip        int               `yaml:"strip"`
	Autoreconf   bool              `yaml:"autoreconf"`
	Libraries    []string          `yaml:"libraries"`
	Headers      []string          `yaml:"headers"`
	Dependencies []string          `yaml:"dependencies"`
	Security     yamlSecurity      `yaml:"security"`
}

type yamlSecurity struct {
	GPGKeyIDs    []string `yaml:"gpg_key_ids"`
	GPGKeysURL   string   `yaml:"gpg_keys_url"`
	SignatureURL string   `yaml:"signature_url"`
}

// RecipeParser parses YAML recipe files
type RecipeParser struct{}

// NewRecipeParser creates a new YAML parser
func NewRecipeParser() *RecipeParser {
	return &RecipeParser{}
}

// ParseFile parses a YAML recipe file into a Recipe entity
func (p *RecipeParser) ParseFile(filePath string) (*entities.Recipe, error) {
	//nolint:gosec // G304: filePath is a recipe descriptor path from the repository
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	return p.Parse(data)
}

// Parse parses YAML bytes into a Recipe entity
func (p *RecipeParser) Parse(data []byte) (*entities.Recipe, error) {
	var yamlDef yamlRecipe
	if err := yaml.Unmarshal(data, &yamlDef); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate required fields
	if yamlDef.Name == "" {
		return nil, fmt.Errorf("recipe must have a name")
	}
	if yamlDef.Version == "" {
		return nil, fmt.Errorf("recipe %s must have a version", yamlDef.Name)
	}

	kind := entities.SourceKind(yamlDef.Source)
	if kind == "" {
		kind = entities.SourceGit
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("recipe %s has unsupported source kind %q", yamlDef.Name, yamlDef.Source)
	}

	// Convert to domain entity
	def := &entities.Recipe{
		Name:         yamlDef.Name,
		Version:      yamlDef.Version,
		Description:  yamlDef.Description,
		Licenses:     convertLicenses(yamlDef.Licenses),
		Source:       kind,
		URL:          yamlDef.URL,
		Checksum:     yamlDef.Checksum,
		Path:         yamlDef.Path,
		Commit:       yamlDef.Commit,
		Remotes:      yamlDef.Remotes,
		Patches:      yamlDef.Patches,
		Strip:        yamlDef.Strip,
		Autoreconf:   yamlDef.Autoreconf,
		Libraries:    yamlDef.Libraries,
		Headers:      yamlDef.Headers,
		Dependencies: yamlDef.Dependencies,
		Security:     convertSecurity(yamlDef.Security),
	}

	return def, nil
}

func convertLicenses(names []string) []entities.License {
	if len(names) == 0 {
		return nil
	}
	licenses := make([]entities.License, 0, len(names))
	for _, name := range names {
		licenses = append(licenses, entities.License(name))
	}
	return licenses
}

func convertSecurity(ys yamlSecurity) entities.Security {
	return entities.Security{
		GPGKeyIDs:    ys.GPGKeyIDs,
		GPGKeysURL:   ys.GPGKeysURL,
		SignatureURL: ys.SignatureURL,
	}
}
