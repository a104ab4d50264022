// Package services implements domain business logic and use cases.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/interfaces"
	"github.com/ochairo/cauldron/internal/domain/interfaces/repositories"
)

var (
	// ErrDuplicateRecipe is returned when two recipes declare the same name.
	ErrDuplicateRecipe = errors.New("duplicate recipe")

	// ErrRegistryFrozen is returned on mutation after the registry has
	// been published.
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// Registry indexes prepared recipes by name and produced artifact.
//
// It follows an initialize-then-freeze discipline: Load prepares every
// descriptor before publishing any of them, and freezes the registry
// afterwards. Reads never mutate state, so once frozen the registry is
// safe for concurrent readers without locking.
type Registry struct {
	repo     repositories.RecipeRepository
	defaults entities.Defaults
	logger   interfaces.Logger

	recipes   map[string]*entities.Recipe
	providers map[string]string // produced library/header -> recipe name
	frozen    bool
}

// NewRegistry creates an empty registry backed by the given repository.
func NewRegistry(repo repositories.RecipeRepository, defaults entities.Defaults, logger interfaces.Logger) *Registry {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Registry{
		repo:      repo,
		defaults:  defaults,
		logger:    logger,
		recipes:   make(map[string]*entities.Recipe),
		providers: make(map[string]string),
	}
}

// Load reads every recipe from the repository, prepares each descriptor,
// and freezes the registry. It must complete before the registry is
// handed to any reader goroutine.
func (r *Registry) Load(ctx context.Context) error {
	if r.frozen {
		return ErrRegistryFrozen
	}

	recipes, err := r.repo.ListRecipes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recipes: %w", err)
	}

	for _, recipe := range recipes {
		if err := r.Add(recipe); err != nil {
			return err
		}
	}

	r.Freeze()
	r.logger.Info("registry loaded",
		interfaces.F("recipes", len(r.recipes)),
		interfaces.F("artifacts", len(r.providers)))
	return nil
}

// Add prepares a single recipe and indexes it. Only valid before Freeze.
func (r *Registry) Add(recipe *entities.Recipe) error {
	if r.frozen {
		return fmt.Errorf("cannot add %q: %w", recipe.Name, ErrRegistryFrozen)
	}
	if recipe.Name == "" {
		return fmt.Errorf("recipe must have a name")
	}
	if recipe.Version == "" {
		return fmt.Errorf("recipe %s must have a version", recipe.Name)
	}
	if _, exists := r.recipes[recipe.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRecipe, recipe.Name)
	}

	recipe.Prepare(r.defaults)
	r.recipes[recipe.Name] = recipe

	for _, artifact := range recipe.Libraries {
		r.index(artifact, recipe.Name)
	}
	for _, artifact := range recipe.Headers {
		r.index(artifact, recipe.Name)
	}

	return nil
}

func (r *Registry) index(artifact, name string) {
	if prev, exists := r.providers[artifact]; exists {
		// First declaration wins so downstream lookups stay stable
		r.logger.Warn("artifact already provided",
			interfaces.F("artifact", artifact),
			interfaces.F("provider", prev),
			interfaces.F("ignored", name))
		return
	}
	r.providers[artifact] = name
}

// Freeze publishes the registry. Further Add or Load calls fail.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether the registry has been published.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Get returns the prepared recipe registered under name.
func (r *Registry) Get(name string) (*entities.Recipe, error) {
	recipe, ok := r.recipes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrRecipeNotFound, name)
	}
	return recipe, nil
}

// ProviderOf returns the recipe that yields the given library or header.
func (r *Registry) ProviderOf(artifact string) (*entities.Recipe, error) {
	name, ok := r.providers[artifact]
	if !ok {
		return nil, fmt.Errorf("no recipe provides %q: %w", artifact, repositories.ErrRecipeNotFound)
	}
	return r.recipes[name], nil
}

// Names returns all registered recipe names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.recipes))
	for name := range r.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered recipe, sorted by name.
func (r *Registry) All() []*entities.Recipe {
	recipes := make([]*entities.Recipe, 0, len(r.recipes))
	for _, name := range r.Names() {
		recipes = append(recipes, r.recipes[name])
	}
	return recipes
}
