package gateways

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gofrs/flock"
	"github.com/sethvargo/go-retry"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/interfaces"
)

var (
	// ErrCommitNotFound indicates the recipe's commit could not be resolved
	// in the local source cache after fetching all remotes.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrRemoteUnreachable indicates a declared remote could not be fetched.
	ErrRemoteUnreachable = errors.New("remote unreachable")
)

// buildBranchName is the branch created in every build checkout so the
// working copy never sits on a detached HEAD.
const buildBranchName = "cauldron-build"

// GitSourceConfig configures where git sources are cached and checked out.
type GitSourceConfig struct {
	// SourcesDir holds one bare cache repository per recipe.
	SourcesDir string

	// BuildDir holds the working checkouts builds run against.
	BuildDir string

	// MaxRetries bounds fetch attempts per remote.
	MaxRetries int

	// RetryBase is the initial backoff between fetch attempts.
	RetryBase time.Duration
}

// GitSource maintains a local bare cache per recipe, keeps it in sync with
// the recipe's declared remotes, and materializes build checkouts from it.
type GitSource struct {
	cfg    GitSourceConfig
	logger interfaces.Logger
}

// NewGitSource creates a git source manager
func NewGitSource(cfg GitSourceConfig, logger interfaces.Logger) *GitSource {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &GitSource{cfg: cfg, logger: logger}
}

// RepoPath returns the path of the recipe's local cache repository.
func (g *GitSource) RepoPath(rec *entities.Recipe) string {
	return filepath.Join(g.cfg.SourcesDir, rec.Name)
}

// BuildPath returns the path of the recipe's build checkout.
func (g *GitSource) BuildPath(rec *entities.Recipe) string {
	return filepath.Join(g.cfg.BuildDir, rec.Name+"-"+rec.Version)
}

// Fetch synchronizes the recipe's local cache with all declared remotes and
// resolves the recipe's commit, returning the resolved hash. The cache is
// guarded by a file lock so concurrent fetches of the same recipe do not
// corrupt it.
func (g *GitSource) Fetch(ctx context.Context, rec *entities.Recipe) (string, error) {
	if !rec.Source.IsGit() {
		return "", fmt.Errorf("recipe %s has non-git source %q", rec.Name, rec.Source)
	}
	if len(rec.Remotes) == 0 {
		return "", fmt.Errorf("recipe %s has no remotes", rec.Name)
	}

	if err := os.MkdirAll(g.cfg.SourcesDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create sources directory: %w", err)
	}

	repoDir := g.RepoPath(rec)

	lock := flock.New(repoDir + ".lock")
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("failed to lock source cache for %s: %w", rec.Name, err)
	}
	if !locked {
		return "", fmt.Errorf("source cache for %s is locked by another process", rec.Name)
	}
	//nolint:errcheck // Defer unlock on advisory file lock
	defer lock.Unlock()

	repo, err := g.openOrInit(repoDir)
	if err != nil {
		return "", err
	}

	if err := g.syncRemotes(repo, rec); err != nil {
		return "", err
	}

	for _, name := range remoteNames(rec) {
		if err := g.fetchRemote(ctx, repo, name); err != nil {
			return "", fmt.Errorf("%w: remote %s (%s): %v", ErrRemoteUnreachable, name, rec.Remotes[name], err)
		}
	}

	hash, err := g.resolveCommit(repo, rec)
	if err != nil {
		return "", err
	}

	// A freshly initialized cache only has remote-tracking refs, which
	// leaves HEAD unborn and the repository uncloneable. Point the default
	// branch at the resolved commit so checkouts can clone from it.
	if err := g.publishHead(repo, hash); err != nil {
		return "", err
	}

	g.logger.Info("fetched sources",
		interfaces.F("recipe", rec.Name),
		interfaces.F("commit", rec.Commit),
		interfaces.F("hash", hash.String()))

	return hash.String(), nil
}

// Resolve resolves the recipe's commit against the local cache without
// touching the network. Fetch must have populated the cache first.
func (g *GitSource) Resolve(_ context.Context, rec *entities.Recipe) (string, error) {
	repo, err := git.PlainOpen(g.RepoPath(rec))
	if err != nil {
		return "", fmt.Errorf("failed to open source cache for %s: %w", rec.Name, err)
	}

	hash, err := g.resolveCommit(repo, rec)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// Checkout materializes the recipe's commit into its build directory by
// cloning from the local cache. An up-to-date checkout is reused unless the
// recipe carries patches, in which case it is always recreated so patches
// apply to pristine sources.
func (g *GitSource) Checkout(ctx context.Context, rec *entities.Recipe) (string, error) {
	cache, err := git.PlainOpen(g.RepoPath(rec))
	if err != nil {
		return "", fmt.Errorf("failed to open source cache for %s: %w", rec.Name, err)
	}

	hash, err := g.resolveCommit(cache, rec)
	if err != nil {
		return "", err
	}

	buildDir := g.BuildPath(rec)
	if fi, statErr := os.Stat(buildDir); statErr == nil && fi.IsDir() {
		if len(rec.Patches) == 0 && checkoutHead(buildDir) == hash.String() {
			g.logger.Debug("checkout up to date",
				interfaces.F("recipe", rec.Name),
				interfaces.F("dir", buildDir))
			return buildDir, nil
		}
		if err := os.RemoveAll(buildDir); err != nil {
			return "", fmt.Errorf("failed to remove stale checkout: %w", err)
		}
	}

	if err := os.MkdirAll(g.cfg.BuildDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}

	repo, err := git.PlainCloneContext(ctx, buildDir, false, &git.CloneOptions{
		URL:        g.RepoPath(rec),
		NoCheckout: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone source cache for %s: %w", rec.Name, err)
	}

	// Carry the cache's remote-tracking refs into the checkout so
	// remote-qualified commits like origin/master stay resolvable there.
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []config.RefSpec{"+refs/remotes/*:refs/remotes/*"},
		Tags:       git.AllTags,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("failed to fetch refs into checkout: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to open worktree: %w", err)
	}

	err = wt.Checkout(&git.CheckoutOptions{
		Hash:   *hash,
		Branch: plumbing.NewBranchReferenceName(buildBranchName),
		Create: true,
		Force:  true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to checkout %s: %w", hash.String(), err)
	}

	if rec.Source == entities.SourceGitTarball {
		if err := normalizeAutotoolsTimestamps(buildDir); err != nil {
			return "", fmt.Errorf("failed to normalize timestamps: %w", err)
		}
	}

	g.logger.Info("checked out sources",
		interfaces.F("recipe", rec.Name),
		interfaces.F("hash", hash.String()),
		interfaces.F("dir", buildDir))

	return buildDir, nil
}

// BuiltVersion returns the version string builds should embed, combining the
// recipe version with the short hash of the resolved commit.
func (g *GitSource) BuiltVersion(rec *entities.Recipe) (string, error) {
	repo, err := git.PlainOpen(g.RepoPath(rec))
	if err != nil {
		return "", fmt.Errorf("failed to open source cache for %s: %w", rec.Name, err)
	}

	hash, err := g.resolveCommit(repo, rec)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s+git~%s", rec.Version, hash.String()[:8]), nil
}

// openOrInit opens the cache repository, initializing a bare one on first use.
func (g *GitSource) openOrInit(repoDir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(repoDir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("failed to open source cache: %w", err)
	}

	if err := os.MkdirAll(repoDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	repo, err = git.PlainInit(repoDir, true)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize source cache: %w", err)
	}

	g.logger.Info("initialized source cache", interfaces.F("dir", repoDir))
	return repo, nil
}

// syncRemotes makes the cache's remote configuration match the recipe,
// adding missing remotes and updating URLs that changed.
func (g *GitSource) syncRemotes(repo *git.Repository, rec *entities.Recipe) error {
	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read cache config: %w", err)
	}

	changed := false
	for _, name := range remoteNames(rec) {
		url := rec.Remotes[name]
		existing, ok := cfg.Remotes[name]
		if ok && len(existing.URLs) == 1 && existing.URLs[0] == url {
			continue
		}
		cfg.Remotes[name] = &config.RemoteConfig{
			Name:  name,
			URLs:  []string{url},
			Fetch: []config.RefSpec{config.RefSpec("+refs/heads/*:refs/remotes/" + name + "/*")},
		}
		changed = true
	}

	if !changed {
		return nil
	}
	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to update cache config: %w", err)
	}
	return nil
}

// fetchRemote fetches one remote with exponential backoff.
func (g *GitSource) fetchRemote(ctx context.Context, repo *git.Repository, name string) error {
	backoff := retry.WithMaxRetries(uint64(g.cfg.MaxRetries), retry.NewExponential(g.cfg.RetryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: name,
			Tags:       git.AllTags,
			Force:      true,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			g.logger.Warn("fetch attempt failed",
				interfaces.F("remote", name),
				interfaces.F("error", err.Error()))
			return retry.RetryableError(err)
		}
		return nil
	})
}

// resolveCommit resolves the recipe's commit expression to a hash.
// Remote-qualified expressions like origin/master are looked up in the
// refs/remotes namespace before falling back to general revision parsing,
// which also handles tags and abbreviated hashes.
func (g *GitSource) resolveCommit(repo *git.Repository, rec *entities.Recipe) (*plumbing.Hash, error) {
	if remote, rest, ok := strings.Cut(rec.Commit, "/"); ok {
		if _, declared := rec.Remotes[remote]; declared {
			ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remote, rest), true)
			if err == nil {
				h := ref.Hash()
				return &h, nil
			}
		}
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(rec.Commit))
	if err != nil {
		return nil, fmt.Errorf("%w: %s (recipe %s)", ErrCommitNotFound, rec.Commit, rec.Name)
	}
	return hash, nil
}

// publishHead points the cache's default branch at the resolved commit.
func (g *GitSource) publishHead(repo *git.Repository, hash *plumbing.Hash) error {
	target := plumbing.Master
	if head, err := repo.Reference(plumbing.HEAD, false); err == nil && head.Type() == plumbing.SymbolicReference {
		target = head.Target()
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(target, *hash)); err != nil {
		return fmt.Errorf("failed to update cache head: %w", err)
	}
	return nil
}

// remoteNames returns the recipe's remote names in deterministic order.
func remoteNames(rec *entities.Recipe) []string {
	names := make([]string, 0, len(rec.Remotes))
	for name := range rec.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// checkoutHead returns the HEAD hash of an existing checkout, or an empty
// string when the directory is not a usable repository.
func checkoutHead(dir string) string {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// normalizeAutotoolsTimestamps touches generated autotools files so a fresh
// checkout does not trip make into regenerating them. Files named
// configure.in and .in files under the m4 macro directory keep their
// timestamps.
func normalizeAutotoolsTimestamps(dir string) error {
	now := time.Now()
	m4Dir := filepath.Join(dir, "m4") + string(filepath.Separator)

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		name := info.Name()
		if name == "configure.in" {
			return nil
		}
		if strings.HasSuffix(name, ".in") && strings.HasPrefix(path, m4Dir) {
			return nil
		}

		if strings.HasSuffix(name, ".m4") || strings.HasSuffix(name, ".in") || strings.HasSuffix(name, "configure") {
			if err := os.Chtimes(path, now, now); err != nil {
				return err
			}
		}
		return nil
	})
}
