package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/services"
	"github.com/ochairo/cauldron/internal/external-adapters/yaml"
)

func runValidate(ctx context.Context, args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	recipesDir := fs.String("recipes-dir", cfg.RecipesDir, "Path to recipes directory")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cauldron validate [options]

Validate every recipe: identity fields, source kind requirements, known
licenses, duplicate names, and patch existence.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  cauldron validate
  cauldron validate --recipes-dir ./recipes
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogJSON)
	repo := yaml.NewRecipeRepository(*recipesDir, logger)

	// The registry stops at the first bad recipe; validation wants every
	// failure reported, so recipes are walked directly here.
	recipes, err := repo.ListRecipes(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing recipes: %v\n", err)
		os.Exit(1)
	}

	defaults := entities.Defaults{GitRoot: cfg.GitRoot, Branch: cfg.Branch}
	validator := services.NewValidator(*recipesDir)

	seen := make(map[string]bool)
	invalid := 0

	for _, rec := range recipes {
		rec.Prepare(defaults)

		var problems []string
		if seen[rec.Name] {
			problems = append(problems, fmt.Sprintf("duplicate recipe name %q", rec.Name))
		}
		seen[rec.Name] = true

		if err := validator.ValidateRecipe(rec); err != nil {
			problems = append(problems, err.Error())
		}
		if _, err := validator.ResolvePatches(rec); err != nil {
			problems = append(problems, err.Error())
		}

		if len(problems) == 0 {
			fmt.Printf("✅ %-20s ok\n", rec.Name)
			continue
		}

		invalid++
		for _, problem := range problems {
			fmt.Printf("❌ %-20s %s\n", rec.Name, problem)
		}
	}

	fmt.Println()
	fmt.Printf("Summary: %d recipes checked, %d invalid\n", len(recipes), invalid)

	if invalid > 0 {
		os.Exit(1)
	}
}
