// Package main provides the cauldron CLI for managing recipes and their sources.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/interfaces"
	"github.com/ochairo/cauldron/internal/domain/services"
	"github.com/ochairo/cauldron/internal/external-adapters/charmlog"
	"github.com/ochairo/cauldron/internal/external-adapters/config"
	"github.com/ochairo/cauldron/internal/external-adapters/yaml"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	command := os.Args[1]

	// Dispatch to subcommand
	switch command {
	case "list":
		runList(ctx, os.Args[2:])
	case "show":
		runShow(ctx, os.Args[2:])
	case "validate":
		runValidate(ctx, os.Args[2:])
	case "fetch":
		runFetch(ctx, os.Args[2:])
	case "outdated":
		runOutdated(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cauldron - Declarative recipe registry and source manager

Usage:
  cauldron <command> [options]

Commands:
  list      List available recipes
  show      Show the prepared descriptor for a recipe
  validate  Validate every recipe against its invariants
  fetch     Fetch and materialize sources for one or more recipes
  outdated  Compare recipe versions against upstream release tags

Configuration defaults can be overridden with CAULDRON_* environment
variables (CAULDRON_RECIPES_DIR, CAULDRON_SOURCES_DIR, ...).

Use "cauldron <command> --help" for more information about a command.`)
}

// loadConfig exits the process when the environment yields an invalid
// configuration, so commands can rely on a vetted value.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(level string, jsonOut bool) interfaces.Logger {
	return charmlog.New(os.Stderr, charmlog.Options{
		Level:      level,
		JSON:       jsonOut,
		ReportTime: true,
	})
}

func loadRegistry(ctx context.Context, recipesDir string, defaults entities.Defaults, logger interfaces.Logger) *services.Registry {
	repo := yaml.NewRecipeRepository(recipesDir, logger)
	registry := services.NewRegistry(repo, defaults, logger)
	if err := registry.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading recipes: %v\n", err)
		os.Exit(1)
	}
	return registry
}
