package gateways

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/ulikunitz/xz"

	"github.com/ochairo/cauldron/internal/domain/entities"
	"github.com/ochairo/cauldron/internal/domain/interfaces"
)

// SignatureVerifier verifies detached signatures of downloaded archives
// against keys imported from keyservers or a published KEYS file.
type SignatureVerifier interface {
	// ImportKeys imports GPG keys by fingerprint
	ImportKeys(ctx context.Context, keyIDs []string) error

	// ImportKeysFromURL imports every key from a KEYS file URL
	ImportKeysFromURL(ctx context.Context, keysURL string) error

	// VerifySignature verifies a detached signature downloaded from a URL
	VerifySignature(ctx context.Context, filePath, signatureURL string) error
}

// TarballSourceConfig configures where archives are cached and unpacked.
type TarballSourceConfig struct {
	// CacheDir holds downloaded archives, one subdirectory per recipe.
	CacheDir string

	// BuildDir holds the unpacked trees builds run against.
	BuildDir string

	// MaxRetries bounds download attempts.
	MaxRetries int

	// RetryBase is the initial backoff between download attempts.
	RetryBase time.Duration
}

// TarballSource downloads release archives, validates them against the
// recipe's checksum and optional signature, and unpacks them into build
// directories.
type TarballSource struct {
	cfg        TarballSourceConfig
	httpClient *http.Client
	sums       *checksumVerifier
	signatures SignatureVerifier
	logger     interfaces.Logger
}

// NewTarballSource creates a tarball source manager. The signature verifier
// may be nil, in which case recipes declaring signatures are fetched with a
// warning instead of being verified.
func NewTarballSource(cfg TarballSourceConfig, signatures SignatureVerifier, logger interfaces.Logger) *TarballSource {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &TarballSource{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for large downloads
		},
		sums:       NewChecksumVerifier(),
		signatures: signatures,
		logger:     logger,
	}
}

// ArchivePath returns where the recipe's downloaded archive is cached.
func (g *TarballSource) ArchivePath(rec *entities.Recipe) string {
	return filepath.Join(g.cfg.CacheDir, rec.Name, filepath.Base(rec.URL))
}

// BuildPath returns the path of the recipe's unpacked source tree.
func (g *TarballSource) BuildPath(rec *entities.Recipe) string {
	return filepath.Join(g.cfg.BuildDir, rec.Name+"-"+rec.Version)
}

// Fetch downloads the recipe's archive into the cache, reusing a cached copy
// when its checksum still matches. The archive's checksum and, when declared,
// its detached signature are verified before the path is returned.
func (g *TarballSource) Fetch(ctx context.Context, rec *entities.Recipe) (string, error) {
	if rec.Source != entities.SourceTarball {
		return "", fmt.Errorf("recipe %s has non-tarball source %q", rec.Name, rec.Source)
	}
	if rec.URL == "" {
		return "", fmt.Errorf("recipe %s has no url", rec.Name)
	}

	dest := g.ArchivePath(rec)
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	cached := false
	if _, err := os.Stat(dest); err == nil {
		if rec.Checksum == "" || g.sums.VerifyChecksum(ctx, dest, rec.Checksum) == nil {
			cached = true
			g.logger.Info("using cached archive",
				interfaces.F("recipe", rec.Name),
				interfaces.F("archive", filepath.Base(dest)))
		} else {
			g.logger.Warn("cached archive failed checksum, redownloading",
				interfaces.F("recipe", rec.Name),
				interfaces.F("archive", filepath.Base(dest)))
			_ = os.Remove(dest)
		}
	}

	if !cached {
		if err := g.download(ctx, rec.URL, dest); err != nil {
			return "", fmt.Errorf("failed to download %s: %w", rec.URL, err)
		}

		if rec.Checksum == "" {
			g.logger.Warn("recipe declares no checksum", interfaces.F("recipe", rec.Name))
		} else if err := g.sums.VerifyChecksum(ctx, dest, rec.Checksum); err != nil {
			_ = os.Remove(dest)
			return "", fmt.Errorf("archive %s: %w", filepath.Base(dest), err)
		}
	}

	if err := g.checkSignature(ctx, rec, dest); err != nil {
		return "", err
	}

	return dest, nil
}

// Extract unpacks the recipe's cached archive into its build directory,
// replacing any previous tree. When the archive wraps everything in a single
// top-level directory, that directory becomes the build directory itself.
func (g *TarballSource) Extract(ctx context.Context, rec *entities.Recipe) (string, error) {
	archive := g.ArchivePath(rec)
	if _, err := os.Stat(archive); err != nil {
		return "", fmt.Errorf("archive for %s is not cached, fetch first: %w", rec.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := g.BuildPath(rec)
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to remove previous build directory: %w", err)
	}
	if err := os.MkdirAll(g.cfg.BuildDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}

	tmp, err := os.MkdirTemp(g.cfg.BuildDir, rec.Name+"-unpack-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := g.extract(archive, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(archive), err)
	}

	// Release archives usually wrap their content in one directory
	root := tmp
	entries, err := os.ReadDir(tmp)
	if err != nil {
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("failed to read staging directory: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		root = filepath.Join(tmp, entries[0].Name())
	}

	if err := os.Rename(root, dest); err != nil {
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("failed to move unpacked tree: %w", err)
	}
	if root != tmp {
		_ = os.RemoveAll(tmp)
	}

	g.logger.Info("extracted archive",
		interfaces.F("recipe", rec.Name),
		interfaces.F("dir", dest))

	return dest, nil
}

// download fetches a URL into dest with exponential backoff, retrying on
// connection failures and server errors but not on client errors.
func (g *TarballSource) download(ctx context.Context, url, dest string) error {
	backoff := retry.WithMaxRetries(uint64(g.cfg.MaxRetries), retry.NewExponential(g.cfg.RetryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, err := g.downloadOnce(ctx, url, dest)
		if err == nil {
			return nil
		}
		if status == 0 || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			g.logger.Warn("download attempt failed",
				interfaces.F("url", url),
				interfaces.F("error", err.Error()))
			return retry.RetryableError(err)
		}
		return err
	})
}

// downloadOnce performs a single download attempt, staging into a .part file
// so an interrupted transfer never poisons the cache. Returns the HTTP
// status code when one was received.
func (g *TarballSource) downloadOnce(ctx context.Context, url, dest string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "cauldron/1.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	part := dest + ".part"
	//nolint:gosec // G304: File path is derived from the recipe URL
	out, err := os.Create(part)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(part)
		return resp.StatusCode, fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(part)
		return resp.StatusCode, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return resp.StatusCode, fmt.Errorf("failed to finalize download: %w", err)
	}

	g.logger.Debug("downloaded archive",
		interfaces.F("url", url),
		interfaces.F("bytes", written))

	return resp.StatusCode, nil
}

// checkSignature verifies the recipe's detached signature when one is
// declared, importing the declared keys first.
func (g *TarballSource) checkSignature(ctx context.Context, rec *entities.Recipe, archive string) error {
	sec := rec.Security
	if sec.SignatureURL == "" {
		return nil
	}
	if g.signatures == nil {
		g.logger.Warn("signature verification skipped, no verifier configured",
			interfaces.F("recipe", rec.Name))
		return nil
	}

	if len(sec.GPGKeyIDs) > 0 {
		if err := g.signatures.ImportKeys(ctx, sec.GPGKeyIDs); err != nil {
			return fmt.Errorf("failed to import GPG keys for %s: %w", rec.Name, err)
		}
	}
	if sec.GPGKeysURL != "" {
		if err := g.signatures.ImportKeysFromURL(ctx, sec.GPGKeysURL); err != nil {
			return fmt.Errorf("failed to import GPG keys for %s: %w", rec.Name, err)
		}
	}

	if err := g.signatures.VerifySignature(ctx, archive, sec.SignatureURL); err != nil {
		return fmt.Errorf("signature verification failed for %s: %w", rec.Name, err)
	}

	g.logger.Info("verified archive signature", interfaces.F("recipe", rec.Name))
	return nil
}

// extract unpacks a tar archive, decompressing by file extension.
func (g *TarballSource) extract(tarPath, destDir string) error {
	//nolint:gosec // G304: File path tarPath is function parameter for extraction
	file, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer file.Close()

	var reader io.Reader
	switch {
	case strings.HasSuffix(tarPath, ".tar.gz") || strings.HasSuffix(tarPath, ".tgz"):
		gzr, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		//nolint:errcheck // Defer close on gzip reader
		defer gzr.Close()
		reader = gzr
	case strings.HasSuffix(tarPath, ".tar.bz2") || strings.HasSuffix(tarPath, ".tbz2"):
		reader = bzip2.NewReader(file)
	case strings.HasSuffix(tarPath, ".tar.xz") || strings.HasSuffix(tarPath, ".txz"):
		xzr, err := xz.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to create xz reader: %w", err)
		}
		reader = xzr
	case strings.HasSuffix(tarPath, ".tar"):
		reader = file
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(tarPath))
	}

	tr := tar.NewReader(reader)

	if err := os.MkdirAll(destDir, 0750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	// Collect symlinks for second pass (to handle cases where target doesn't exist yet)
	type symlinkInfo struct {
		target   string
		linkname string
	}
	var symlinks []symlinkInfo

	cleanDest := filepath.Clean(destDir)

	// Extract all files (first pass: files and directories)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break // End of archive
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}

		// Build target path
		//nolint:gosec // G305: Path traversal validated by the prefix check below
		target := filepath.Join(destDir, header.Name)

		// Ensure target is within destDir (security check)
		if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("invalid file path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0750); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}

			//nolint:gosec // G115: Integer overflow from tar header mode is acceptable
			outFile, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_RDWR, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}

			// Copy file contents with size limit (1GB max to prevent decompression bombs)
			if _, err := io.Copy(outFile, io.LimitReader(tr, 1<<30)); err != nil {
				_ = outFile.Close()
				return fmt.Errorf("failed to write file: %w", err)
			}
			if err := outFile.Close(); err != nil {
				return fmt.Errorf("failed to close file: %w", err)
			}

		case tar.TypeSymlink:
			// Defer symlink creation to second pass
			symlinks = append(symlinks, symlinkInfo{
				target:   target,
				linkname: header.Linkname,
			})

		default:
			g.logger.Warn("ignoring unsupported archive entry",
				interfaces.F("type", header.Typeflag),
				interfaces.F("name", header.Name))
		}
	}

	// Second pass: create symlinks after all files exist
	for _, link := range symlinks {
		if err := os.MkdirAll(filepath.Dir(link.target), 0750); err != nil {
			return fmt.Errorf("failed to create directory for symlink: %w", err)
		}
		// Some release archives carry dangling symlinks, keep going
		if err := os.Symlink(link.linkname, link.target); err != nil {
			g.logger.Warn("failed to create symlink",
				interfaces.F("target", link.target),
				interfaces.F("linkname", link.linkname),
				interfaces.F("error", err.Error()))
		}
	}

	return nil
}
