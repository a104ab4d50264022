package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/cauldron/internal/domain/entities"
)

// ErrMissingPatch is returned when a patch entry does not resolve to an
// existing file.
var ErrMissingPatch = errors.New("patch file not found")

// Validator checks the recipe invariants the descriptor itself does not
// enforce. The orchestrator calls it at the point of use; the validate
// command runs it over the whole tree.
type Validator struct {
	recipesDir string
}

// NewValidator creates a validator resolving patches against recipesDir.
func NewValidator(recipesDir string) *Validator {
	return &Validator{recipesDir: recipesDir}
}

// ValidateRecipe checks the structural invariants of a prepared recipe:
// identity fields, source kind, known licenses, and the fields its source
// kind requires.
func (v *Validator) ValidateRecipe(recipe *entities.Recipe) error {
	if recipe.Name == "" {
		return fmt.Errorf("recipe must have a name")
	}
	if recipe.Version == "" {
		return fmt.Errorf("recipe %s must have a version", recipe.Name)
	}
	if !recipe.Source.Valid() {
		return fmt.Errorf("recipe %s has unsupported source kind %q", recipe.Name, recipe.Source)
	}

	for _, license := range recipe.Licenses {
		if !license.Known() {
			return fmt.Errorf("recipe %s declares unknown license %q", recipe.Name, license)
		}
	}

	switch {
	case recipe.Source.IsGit():
		if len(recipe.Remotes) == 0 {
			return fmt.Errorf("recipe %s must declare at least one remote", recipe.Name)
		}
		if _, ok := recipe.Remotes["origin"]; !ok {
			return fmt.Errorf("recipe %s must declare an origin remote", recipe.Name)
		}
	case recipe.Source == entities.SourceTarball:
		if recipe.URL == "" {
			return fmt.Errorf("recipe %s must declare a tarball url", recipe.Name)
		}
	case recipe.Source == entities.SourceLocal:
		if recipe.Path == "" {
			return fmt.Errorf("recipe %s must declare a source path", recipe.Name)
		}
	}

	return nil
}

// ResolvePatches returns the absolute path of every patch in declaration
// order. Relative entries resolve against <recipesDir>/<recipe-name>/;
// absolute entries pass through. A patch that does not exist yields
// ErrMissingPatch.
func (v *Validator) ResolvePatches(recipe *entities.Recipe) ([]string, error) {
	if len(recipe.Patches) == 0 {
		return nil, nil
	}

	resolved := make([]string, 0, len(recipe.Patches))
	for _, patch := range recipe.Patches {
		path := patch
		if !filepath.IsAbs(path) {
			path = filepath.Join(v.recipesDir, recipe.Name, patch)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve patch %s: %w", patch, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("%w: %s (recipe %s)", ErrMissingPatch, patch, recipe.Name)
		}
		resolved = append(resolved, abs)
	}

	return resolved, nil
}
