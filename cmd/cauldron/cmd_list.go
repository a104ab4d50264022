package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ochairo/cauldron/internal/domain/entities"
)

func runList(ctx context.Context, args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var (
		recipesDir = fs.String("recipes-dir", cfg.RecipesDir, "Path to recipes directory")
		sourceKind = fs.String("source", "", "Filter by source kind (git, git-tarball, tarball, local, custom)")
		provides   = fs.String("provides", "", "Show the recipe providing a library or header")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cauldron list [options]

List all available recipes.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  cauldron list
  cauldron list --source git
  cauldron list --provides libregex
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogJSON)
	registry := loadRegistry(ctx, *recipesDir, entities.Defaults{GitRoot: cfg.GitRoot, Branch: cfg.Branch}, logger)

	// Artifact lookup mode
	if *provides != "" {
		rec, err := registry.ProviderOf(*provides)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s is provided by %s %s\n", *provides, rec.Name, rec.Version)
		return
	}

	recipes := registry.All()
	if *sourceKind != "" {
		filtered := make([]*entities.Recipe, 0)
		for _, rec := range recipes {
			if string(rec.Source) == *sourceKind {
				filtered = append(filtered, rec)
			}
		}
		recipes = filtered
	}

	// Display results
	if *sourceKind != "" {
		fmt.Printf("Recipes with %s sources (%d total):\n\n", *sourceKind, len(recipes))
	} else {
		fmt.Printf("Available recipes (%d total):\n\n", len(recipes))
	}

	for _, rec := range recipes {
		fmt.Printf("  %-20s %s\n", rec.Name, rec.Description)
		fmt.Printf("  %-20s Version: %s  Source: %s\n", "", rec.Version, rec.Source)

		if len(rec.Licenses) > 0 {
			fmt.Printf("  %-20s Licenses: %v\n", "", rec.Licenses)
		}
		if len(rec.Patches) > 0 {
			fmt.Printf("  %-20s Patches: %d\n", "", len(rec.Patches))
		}
		if rec.Security.SignatureURL != "" {
			fmt.Printf("  %-20s 🔐 Security: GPG signature verification enabled\n", "")
		}

		fmt.Println()
	}
}
