package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ochairo/cauldron/internal/domain-adapters/gateways"
	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/services"
)

// OutdatedInfo represents one recipe's upstream comparison
type OutdatedInfo struct {
	Recipe         string `json:"recipe"`
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version,omitempty"`
	UpdateNeeded   bool   `json:"update_needed"`
	Error          string `json:"error,omitempty"`
}

func runOutdated(ctx context.Context, args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("outdated", flag.ExitOnError)
	var (
		recipesDir = fs.String("recipes-dir", cfg.RecipesDir, "Path to recipes directory")
		jsonOutput = fs.Bool("json", true, "Output results as JSON (default)")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cauldron outdated [options] [name...]

Compare recipe versions against the release tags advertised by their
origin remotes. Only git-backed recipes are checked.

If no names are given, checks all recipes.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  cauldron outdated                 # Check all recipes
  cauldron outdated orc zlib        # Check specific recipes
  cauldron outdated --json=false    # Human-readable output
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogJSON)
	registry := loadRegistry(ctx, *recipesDir, entities.Defaults{GitRoot: cfg.GitRoot, Branch: cfg.Branch}, logger)
	checker := gateways.NewUpstreamChecker(cfg.MaxRetries, 0, logger)

	names := fs.Args()
	if len(names) == 0 {
		names = registry.Names()
	}

	var results []OutdatedInfo
	for _, name := range names {
		// Stop cleanly when the context is cancelled mid-walk
		select {
		case <-ctx.Done():
			if *jsonOutput {
				outputOutdatedJSON(results)
			} else {
				outputOutdatedHuman(results)
				fmt.Fprintf(os.Stderr, "\n⚠️  Stopped checking recipes: %v\n", ctx.Err())
			}
			os.Exit(1)
		default:
		}

		results = append(results, checkUpstream(ctx, registry, checker, name))
	}

	if *jsonOutput {
		outputOutdatedJSON(results)
	} else {
		outputOutdatedHuman(results)
	}

	// Exit 0 even when updates exist; callers parse the output to decide.
	// Per-recipe errors are carried in the results, not the exit code.
}

func checkUpstream(ctx context.Context, registry *services.Registry, checker *gateways.UpstreamChecker, name string) OutdatedInfo {
	info := OutdatedInfo{Recipe: name}

	rec, err := registry.Get(name)
	if err != nil {
		info.Error = fmt.Sprintf("failed to load recipe: %v", err)
		return info
	}
	info.CurrentVersion = rec.Version

	if !rec.Source.IsGit() {
		info.Error = fmt.Sprintf("%s source, no upstream remote to check", rec.Source)
		return info
	}

	status, err := checker.Outdated(ctx, rec)
	if err != nil {
		info.Error = fmt.Sprintf("failed to check upstream: %v", err)
		return info
	}

	info.LatestVersion = status.Latest
	info.UpdateNeeded = status.Outdated
	return info
}

func outputOutdatedJSON(results []OutdatedInfo) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func outputOutdatedHuman(results []OutdatedInfo) {
	fmt.Println("Upstream Release Check Results")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	updates := 0
	errors := 0

	for _, info := range results {
		//nolint:gocritic // ifElseChain: checking different struct fields, not suitable for switch
		if info.Error != "" {
			fmt.Printf("❌ %-20s ERROR: %s\n", info.Recipe, info.Error)
			errors++
		} else if info.UpdateNeeded {
			fmt.Printf("📦 %-20s %s -> %s (new version available)\n", info.Recipe, info.CurrentVersion, info.LatestVersion)
			updates++
		} else {
			fmt.Printf("✅ %-20s %s (up to date)\n", info.Recipe, info.CurrentVersion)
		}
	}

	fmt.Println()
	fmt.Printf("Summary: %d recipes checked, %d updates available, %d errors\n",
		len(results), updates, errors)
}
