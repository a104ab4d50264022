package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ochairo/cauldron/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/cauldron/internal/domain-orchestrators"
	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/services"
	"github.com/ochairo/cauldron/internal/external-adapters/gpg"
)

func runFetch(ctx context.Context, args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var (
		recipesDir = fs.String("recipes-dir", cfg.RecipesDir, "Path to recipes directory")
		sourcesDir = fs.String("sources-dir", cfg.SourcesDir, "Cache directory for git mirrors and archives")
		buildDir   = fs.String("build-dir", cfg.BuildDir, "Directory where source trees are materialized")
		all        = fs.Bool("all", false, "Fetch every recipe in the registry")
		quiet      = fs.Bool("quiet", false, "Quiet mode - only report failures")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cauldron fetch [options] <name>...
       cauldron fetch --all [options]

Fetch sources into the cache and materialize build directories. Git
sources are mirrored and checked out at their pinned commit; tarballs
are downloaded, checksum- and signature-verified, and unpacked.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  cauldron fetch mingw-regex
  cauldron fetch zlib orc
  cauldron fetch --all --quiet
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogJSON)
	registry := loadRegistry(ctx, *recipesDir, entities.Defaults{GitRoot: cfg.GitRoot, Branch: cfg.Branch}, logger)

	// Determine which recipes to fetch
	var names []string
	if *all {
		names = registry.Names()
	} else {
		names = fs.Args()
	}
	if len(names) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no recipes to fetch\n\n")
		fs.Usage()
		os.Exit(1)
	}

	// Wire the acquisition stack
	gitSource := gateways.NewGitSource(gateways.GitSourceConfig{
		SourcesDir: *sourcesDir,
		BuildDir:   *buildDir,
		MaxRetries: cfg.MaxRetries,
	}, logger)
	tarballSource := gateways.NewTarballSource(gateways.TarballSourceConfig{
		CacheDir:   *sourcesDir,
		BuildDir:   *buildDir,
		MaxRetries: cfg.MaxRetries,
	}, gpg.NewVerifier(), logger)
	localSource := gateways.NewLocalSource(*buildDir, logger)
	validator := services.NewValidator(*recipesDir)

	orch := orchestrators.NewFetchOrchestrator(registry, gitSource, tarballSource, localSource, validator, logger)

	failures := 0
	for _, name := range names {
		fetchCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
		result, err := orch.FetchRecipe(fetchCtx, name)
		cancel()

		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "❌ %-20s %v\n", name, err)
			continue
		}

		if !*quiet {
			fmt.Println(result.GetFetchSummary())
			fmt.Println()
		}
	}

	fmt.Printf("Summary: %d recipes fetched, %d failed\n", len(names)-failures, failures)

	if failures > 0 {
		os.Exit(1)
	}
}
