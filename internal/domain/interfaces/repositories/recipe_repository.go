// Package repositories defines interfaces for data access layers.
package repositories

import (
	"context"
	"errors"

	"github.com/ochairo/cauldron/internal/domain/entities"
)

// ErrRecipeNotFound is returned when a name does not resolve to a recipe,
// either in a repository or in the registry built from it.
var ErrRecipeNotFound = errors.New("recipe not found")

// RecipeRepository defines the interface for accessing recipe descriptors
type RecipeRepository interface {
	// GetRecipe retrieves a recipe descriptor by name
	GetRecipe(ctx context.Context, name string) (*entities.Recipe, error)

	// ListRecipes returns all available recipe descriptors
	ListRecipes(ctx context.Context) ([]*entities.Recipe, error)
}
