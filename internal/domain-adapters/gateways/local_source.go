package gateways

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/interfaces"
)

// LocalSource materializes recipes whose sources already live on the local
// filesystem by copying them into the build directory.
type LocalSource struct {
	buildDir string
	logger   interfaces.Logger
}

// NewLocalSource creates a local source manager
func NewLocalSource(buildDir string, logger interfaces.Logger) *LocalSource {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &LocalSource{buildDir: buildDir, logger: logger}
}

// BuildPath returns the path of the recipe's build copy.
func (g *LocalSource) BuildPath(rec *entities.Recipe) string {
	return filepath.Join(g.buildDir, rec.Name+"-"+rec.Version)
}

// Extract copies the recipe's source tree into the build directory,
// replacing any previous copy so builds never see leftover state.
func (g *LocalSource) Extract(ctx context.Context, rec *entities.Recipe) (string, error) {
	if rec.Source != entities.SourceLocal {
		return "", fmt.Errorf("recipe %s has non-local source %q", rec.Name, rec.Source)
	}
	if rec.Path == "" {
		return "", fmt.Errorf("recipe %s has no path", rec.Name)
	}

	fi, err := os.Stat(rec.Path)
	if err != nil {
		return "", fmt.Errorf("source path for %s: %w", rec.Name, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("source path for %s is not a directory: %s", rec.Name, rec.Path)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := g.BuildPath(rec)
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to remove previous build directory: %w", err)
	}
	if err := os.MkdirAll(g.buildDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}

	if err := copy.Copy(rec.Path, dest); err != nil {
		return "", fmt.Errorf("failed to copy sources for %s: %w", rec.Name, err)
	}

	g.logger.Info("copied local sources",
		interfaces.F("recipe", rec.Name),
		interfaces.F("from", rec.Path),
		interfaces.F("dir", dest))

	return dest, nil
}
