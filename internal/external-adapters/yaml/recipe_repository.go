package yaml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/interfaces"
	"github.com/ochairo/cauldron/internal/domain/interfaces/repositories"
)

// RecipeRepository implements repositories.RecipeRepository using YAML files,
// one descriptor per file. Patches referenced by a recipe live in a
// directory named after it, next to the file.
type RecipeRepository struct {
	recipesDir string
	parser     *RecipeParser
	logger     interfaces.Logger
}

// NewRecipeRepository creates a new YAML-based recipe repository
func NewRecipeRepository(recipesDir string, logger interfaces.Logger) *RecipeRepository {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &RecipeRepository{
		recipesDir: recipesDir,
		parser:     NewRecipeParser(),
		logger:     logger,
	}
}

// Dir returns the recipes directory this repository reads from.
func (r *RecipeRepository) Dir() string {
	return r.recipesDir
}

// GetRecipe retrieves a recipe descriptor by name
func (r *RecipeRepository) GetRecipe(_ context.Context, name string) (*entities.Recipe, error) {
	filePath := filepath.Join(r.recipesDir, name+".yml")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", repositories.ErrRecipeNotFound, name)
	}

	return r.parser.ParseFile(filePath)
}

// ListRecipes returns all available recipe descriptors
func (r *RecipeRepository) ListRecipes(_ context.Context) ([]*entities.Recipe, error) {
	entries, err := os.ReadDir(r.recipesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes directory: %w", err)
	}

	recipes := make([]*entities.Recipe, 0)
	for _, entry := range entries {
		// Skip patch directories and non-YAML files
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}

		filePath := filepath.Join(r.recipesDir, entry.Name())
		def, err := r.parser.ParseFile(filePath)
		if err != nil {
			// Log warning but continue processing other files
			r.logger.Warn("failed to parse recipe",
				interfaces.F("file", entry.Name()),
				interfaces.F("error", err))
			continue
		}

		recipes = append(recipes, def)
	}

	return recipes, nil
}
