// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"fmt"
	"time"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/interfaces"
)

// Registry interface for looking up prepared recipes
type Registry interface {
	Get(name string) (*entities.Recipe, error)
}

// GitFetcher interface for acquiring revision-controlled sources
type GitFetcher interface {
	Fetch(ctx context.Context, rec *entities.Recipe) (string, error)
	Checkout(ctx context.Context, rec *entities.Recipe) (string, error)
	BuiltVersion(rec *entities.Recipe) (string, error)
}

// TarballFetcher interface for downloading and unpacking release archives
type TarballFetcher interface {
	Fetch(ctx context.Context, rec *entities.Recipe) (string, error)
	Extract(ctx context.Context, rec *entities.Recipe) (string, error)
}

// LocalFetcher interface for copying sources already on disk
type LocalFetcher interface {
	Extract(ctx context.Context, rec *entities.Recipe) (string, error)
}

// PatchResolver interface for locating patch files in declaration order
type PatchResolver interface {
	ResolvePatches(rec *entities.Recipe) ([]string, error)
}

// FetchOrchestrator coordinates the source acquisition workflow: look up
// the prepared recipe, bring its source into the cache, materialize the
// build directory, and report what a build needs to know. Patching and
// building themselves happen downstream.
type FetchOrchestrator struct {
	registry Registry
	git      GitFetcher
	tarball  TarballFetcher
	local    LocalFetcher
	patches  PatchResolver
	logger   interfaces.Logger
}

// NewFetchOrchestrator creates a new fetch orchestrator
func NewFetchOrchestrator(
	registry Registry,
	git GitFetcher,
	tarball TarballFetcher,
	local LocalFetcher,
	patches PatchResolver,
	logger interfaces.Logger,
) *FetchOrchestrator {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &FetchOrchestrator{
		registry: registry,
		git:      git,
		tarball:  tarball,
		local:    local,
		patches:  patches,
		logger:   logger,
	}
}

// FetchResult contains the result of a fetch operation
type FetchResult struct {
	Recipe          *entities.Recipe
	SourceDir       string   // materialized build tree, empty for custom sources
	ArchivePath     string   // cached archive, tarball sources only
	Revision        string   // resolved commit hash, git sources only
	BuiltVersion    string   // version string the build will record
	Patches         []string // resolved patch paths in declaration order
	Autoreconf      bool
	FetchDuration   time.Duration
	ExtractDuration time.Duration
	TotalDuration   time.Duration
	Success         bool
	Error           error
}

// FetchRecipe acquires the source for one recipe and materializes its
// build directory.
func (o *FetchOrchestrator) FetchRecipe(ctx context.Context, name string) (*FetchResult, error) {
	startTime := time.Now()
	result := &FetchResult{}

	// Step 1: Look up the prepared recipe
	rec, err := o.registry.Get(name)
	if err != nil {
		result.Error = fmt.Errorf("failed to load recipe: %w", err)
		return result, result.Error
	}
	result.Recipe = rec
	result.Autoreconf = rec.Autoreconf

	// Step 2: Resolve patches before touching the network so a missing
	// patch fails fast
	patches, err := o.patches.ResolvePatches(rec)
	if err != nil {
		result.Error = fmt.Errorf("failed to resolve patches: %w", err)
		return result, result.Error
	}
	result.Patches = patches

	// Step 3: Acquire the source for the recipe's kind
	switch rec.Source {
	case entities.SourceGit, entities.SourceGitTarball:
		if err := o.fetchGit(ctx, rec, result); err != nil {
			return result, result.Error
		}
	case entities.SourceTarball:
		if err := o.fetchTarball(ctx, rec, result); err != nil {
			return result, result.Error
		}
	case entities.SourceLocal:
		extractStart := time.Now()
		dir, err := o.local.Extract(ctx, rec)
		if err != nil {
			result.Error = fmt.Errorf("failed to copy local source: %w", err)
			return result, result.Error
		}
		result.SourceDir = dir
		result.ExtractDuration = time.Since(extractStart)
		result.BuiltVersion = rec.Version
	case entities.SourceCustom:
		// Acquisition is handled outside the gateways for custom sources
		o.logger.Info("custom source, nothing to fetch", interfaces.F("recipe", rec.Name))
		result.BuiltVersion = rec.Version
	default:
		result.Error = fmt.Errorf("recipe %s has unsupported source kind %q", rec.Name, rec.Source)
		return result, result.Error
	}

	result.Success = true
	result.TotalDuration = time.Since(startTime)
	return result, nil
}

func (o *FetchOrchestrator) fetchGit(ctx context.Context, rec *entities.Recipe, result *FetchResult) error {
	fetchStart := time.Now()
	revision, err := o.git.Fetch(ctx, rec)
	if err != nil {
		result.Error = fmt.Errorf("failed to fetch git source: %w", err)
		return result.Error
	}
	result.Revision = revision
	result.FetchDuration = time.Since(fetchStart)

	extractStart := time.Now()
	dir, err := o.git.Checkout(ctx, rec)
	if err != nil {
		result.Error = fmt.Errorf("failed to check out source: %w", err)
		return result.Error
	}
	result.SourceDir = dir
	result.ExtractDuration = time.Since(extractStart)

	builtVersion, err := o.git.BuiltVersion(rec)
	if err != nil {
		result.Error = fmt.Errorf("failed to derive built version: %w", err)
		return result.Error
	}
	result.BuiltVersion = builtVersion
	return nil
}

func (o *FetchOrchestrator) fetchTarball(ctx context.Context, rec *entities.Recipe, result *FetchResult) error {
	fetchStart := time.Now()
	archive, err := o.tarball.Fetch(ctx, rec)
	if err != nil {
		result.Error = fmt.Errorf("failed to download tarball: %w", err)
		return result.Error
	}
	result.ArchivePath = archive
	result.FetchDuration = time.Since(fetchStart)

	extractStart := time.Now()
	dir, err := o.tarball.Extract(ctx, rec)
	if err != nil {
		result.Error = fmt.Errorf("failed to extract tarball: %w", err)
		return result.Error
	}
	result.SourceDir = dir
	result.ExtractDuration = time.Since(extractStart)
	result.BuiltVersion = rec.Version
	return nil
}

// GetFetchSummary returns a human-readable summary of the fetch
func (r *FetchResult) GetFetchSummary() string {
	if !r.Success {
		return fmt.Sprintf("Fetch failed: %v", r.Error)
	}

	summary := fmt.Sprintf(`Fetch successful!
Recipe: %s
Version: %s
Source: %s
Fetch: %v
Extract: %v
Total: %v`,
		r.Recipe.Name,
		r.BuiltVersion,
		r.SourceDir,
		r.FetchDuration,
		r.ExtractDuration,
		r.TotalDuration,
	)

	if r.Revision != "" {
		summary += fmt.Sprintf("\nRevision: %s", r.Revision)
	}
	if len(r.Patches) > 0 {
		summary += fmt.Sprintf("\nPatches: %d to apply", len(r.Patches))
	}
	if r.Autoreconf {
		summary += "\nAutoreconf: required before configure"
	}

	return summary
}
