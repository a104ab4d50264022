package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/services"
)

func runShow(ctx context.Context, args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("show", flag.ExitOnError)
	recipesDir := fs.String("recipes-dir", cfg.RecipesDir, "Path to recipes directory")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cauldron show <name> [options]

Show the prepared descriptor for one recipe: derived remotes, expanded
URLs, and resolved patch paths.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  cauldron show mingw-regex
  cauldron show zlib --recipes-dir ./recipes
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: recipe name is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogJSON)
	registry := loadRegistry(ctx, *recipesDir, entities.Defaults{GitRoot: cfg.GitRoot, Branch: cfg.Branch}, logger)

	rec, err := registry.Get(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printRecipe(rec, *recipesDir)
}

func printRecipe(rec *entities.Recipe, recipesDir string) {
	fmt.Printf("%s %s\n", rec.Name, rec.Version)
	if rec.Description != "" {
		fmt.Printf("  %s\n", rec.Description)
	}
	fmt.Println()

	fmt.Printf("  %-14s %s\n", "Source:", rec.Source)

	switch {
	case rec.Source.IsGit():
		fmt.Printf("  %-14s %s\n", "Commit:", rec.Commit)
		for _, name := range sortedKeys(rec.Remotes) {
			fmt.Printf("  %-14s %s = %s\n", "Remote:", name, rec.Remotes[name])
		}
	case rec.Source == entities.SourceTarball:
		fmt.Printf("  %-14s %s\n", "URL:", rec.URL)
		if rec.Checksum != "" {
			fmt.Printf("  %-14s %s\n", "Checksum:", rec.Checksum)
		}
	case rec.Source == entities.SourceLocal:
		fmt.Printf("  %-14s %s\n", "Path:", rec.Path)
	}

	if len(rec.Licenses) > 0 {
		licenses := make([]string, 0, len(rec.Licenses))
		for _, l := range rec.Licenses {
			licenses = append(licenses, string(l))
		}
		fmt.Printf("  %-14s %s\n", "Licenses:", strings.Join(licenses, ", "))
	}

	if len(rec.Patches) > 0 {
		fmt.Printf("  %-14s strip level %d\n", "Patches:", rec.Strip)
		validator := services.NewValidator(recipesDir)
		resolved, err := validator.ResolvePatches(rec)
		if err != nil {
			// Still show the declared entries so the problem is visible
			for _, patch := range rec.Patches {
				fmt.Printf("  %-14s %s\n", "", patch)
			}
			fmt.Printf("  %-14s ⚠️  %v\n", "", err)
		} else {
			for _, patch := range resolved {
				fmt.Printf("  %-14s %s\n", "", patch)
			}
		}
	}

	if rec.Autoreconf {
		fmt.Printf("  %-14s yes\n", "Autoreconf:")
	}
	if len(rec.Libraries) > 0 {
		fmt.Printf("  %-14s %s\n", "Libraries:", strings.Join(rec.Libraries, ", "))
	}
	if len(rec.Headers) > 0 {
		fmt.Printf("  %-14s %s\n", "Headers:", strings.Join(rec.Headers, ", "))
	}
	if len(rec.Dependencies) > 0 {
		fmt.Printf("  %-14s %s\n", "Depends:", strings.Join(rec.Dependencies, ", "))
	}

	if rec.Security.SignatureURL != "" {
		fmt.Printf("  %-14s %s\n", "Signature:", rec.Security.SignatureURL)
	}
	if len(rec.Security.GPGKeyIDs) > 0 {
		fmt.Printf("  %-14s %s\n", "GPG keys:", strings.Join(rec.Security.GPGKeyIDs, ", "))
	}
	if rec.Security.GPGKeysURL != "" {
		fmt.Printf("  %-14s %s\n", "GPG keys URL:", rec.Security.GPGKeysURL)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
