package gateways

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sethvargo/go-retry"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/interfaces"
)

// UpstreamStatus describes how a recipe's pinned version compares with the
// newest release tag advertised by its origin remote.
type UpstreamStatus struct {
	Name     string
	Current  string
	Latest   string
	Outdated bool
}

// UpstreamChecker queries a recipe's origin remote for release tags without
// cloning or fetching anything.
type UpstreamChecker struct {
	maxRetries int
	retryBase  time.Duration
	logger     interfaces.Logger
}

// NewUpstreamChecker creates an upstream release checker
func NewUpstreamChecker(maxRetries int, retryBase time.Duration, logger interfaces.Logger) *UpstreamChecker {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryBase <= 0 {
		retryBase = time.Second
	}
	return &UpstreamChecker{maxRetries: maxRetries, retryBase: retryBase, logger: logger}
}

// LatestRelease returns the highest semver release tag advertised by the
// recipe's origin remote. Prerelease tags and tags that do not parse as
// versions are ignored.
func (c *UpstreamChecker) LatestRelease(ctx context.Context, rec *entities.Recipe) (string, error) {
	url, ok := rec.Remotes["origin"]
	if !ok || url == "" {
		return "", fmt.Errorf("recipe %s has no origin remote", rec.Name)
	}

	refs, err := c.listRefs(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRemoteUnreachable, url, err)
	}

	var latest *semver.Version
	for _, ref := range refs {
		if !ref.Name().IsTag() {
			continue
		}
		// Annotated tags are also advertised in peeled form
		name := strings.TrimSuffix(ref.Name().Short(), "^{}")

		v, err := semver.NewVersion(name)
		if err != nil {
			continue
		}
		if v.Prerelease() != "" {
			continue
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
		}
	}

	if latest == nil {
		return "", fmt.Errorf("no release tags found for %s", rec.Name)
	}
	return latest.Original(), nil
}

// Outdated reports whether a newer release than the recipe's pinned version
// is available upstream. Recipes whose version does not parse as semver are
// reported as current, since no meaningful comparison is possible.
func (c *UpstreamChecker) Outdated(ctx context.Context, rec *entities.Recipe) (UpstreamStatus, error) {
	latest, err := c.LatestRelease(ctx, rec)
	if err != nil {
		return UpstreamStatus{}, err
	}

	status := UpstreamStatus{Name: rec.Name, Current: rec.Version, Latest: latest}

	current, err := semver.NewVersion(rec.Version)
	if err != nil {
		c.logger.Warn("recipe version is not semver, skipping comparison",
			interfaces.F("recipe", rec.Name),
			interfaces.F("version", rec.Version))
		return status, nil
	}

	latestVersion, err := semver.NewVersion(latest)
	if err != nil {
		return status, nil
	}
	status.Outdated = latestVersion.GreaterThan(current)
	return status, nil
}

// listRefs asks the remote for its advertised references with backoff.
func (c *UpstreamChecker) listRefs(ctx context.Context, url string) ([]*plumbing.Reference, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{url},
	})

	var refs []*plumbing.Reference
	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(c.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		listed, listErr := remote.ListContext(ctx, &git.ListOptions{})
		if listErr != nil {
			c.logger.Warn("list attempt failed",
				interfaces.F("url", url),
				interfaces.F("error", listErr.Error()))
			return retry.RetryableError(listErr)
		}
		refs = listed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}
