package gateways

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/ochairo/cauldron/internal/domain/entities"
)

type tarEntry struct {
	name string
	body string
	link string
}

func writeTarTo(t *testing.T, w *tar.Writer, entries []tarEntry) {
	t.Helper()

	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.name, "/"):
			if err := w.WriteHeader(&tar.Header{Name: e.name, Mode: 0755, Typeflag: tar.TypeDir}); err != nil {
				t.Fatalf("WriteHeader(%s) error = %v", e.name, err)
			}
		case e.link != "":
			if err := w.WriteHeader(&tar.Header{Name: e.name, Mode: 0777, Typeflag: tar.TypeSymlink, Linkname: e.link}); err != nil {
				t.Fatalf("WriteHeader(%s) error = %v", e.name, err)
			}
		default:
			hdr := &tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
			if err := w.WriteHeader(hdr); err != nil {
				t.Fatalf("WriteHeader(%s) error = %v", e.name, err)
			}
			if _, err := w.Write([]byte(e.body)); err != nil {
				t.Fatalf("Write(%s) error = %v", e.name, err)
			}
		}
	}
}

func writeTarGz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	writeTarTo(t, tw, entries)
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close() error = %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip Close() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file Close() error = %v", err)
	}
}

func writeTarXz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	xw, err := xz.NewWriter(f)
	if err != nil {
		t.Fatalf("xz NewWriter() error = %v", err)
	}
	tw := tar.NewWriter(xw)
	writeTarTo(t, tw, entries)
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close() error = %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz Close() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file Close() error = %v", err)
	}
}

var zlibEntries = []tarEntry{
	{name: "zlib-1.3.1/"},
	{name: "zlib-1.3.1/zlib.h", body: "#define ZLIB_VERSION \"1.3.1\"\n"},
	{name: "zlib-1.3.1/src/"},
	{name: "zlib-1.3.1/src/inflate.c", body: "int inflate(void);\n"},
	{name: "zlib-1.3.1/libz.so", link: "libz.so.1.3.1"},
}

func newTestTarballSource(t *testing.T, signatures SignatureVerifier) *TarballSource {
	t.Helper()

	base := t.TempDir()
	return NewTarballSource(TarballSourceConfig{
		CacheDir:   filepath.Join(base, "cache"),
		BuildDir:   filepath.Join(base, "build"),
		MaxRetries: 1,
		RetryBase:  time.Millisecond,
	}, signatures, nil)
}

func tarballTestRecipe(url, checksum string) *entities.Recipe {
	rec := &entities.Recipe{
		Name:     "zlib",
		Version:  "1.3.1",
		Source:   entities.SourceTarball,
		URL:      url,
		Checksum: checksum,
	}
	rec.Prepare(entities.Defaults{})
	return rec
}

// fileChecksum returns the SHA256 of a file for use in test recipes.
func fileChecksum(t *testing.T, path string) string {
	t.Helper()

	sum, err := NewChecksumVerifier().CalculateChecksum(path)
	if err != nil {
		t.Fatalf("CalculateChecksum() error = %v", err)
	}
	return sum
}

type mockSignatureVerifier struct {
	importedIDs  [][]string
	importedURLs []string
	verified     [][2]string
	importErr    error
	verifyErr    error
}

func (m *mockSignatureVerifier) ImportKeys(_ context.Context, keyIDs []string) error {
	m.importedIDs = append(m.importedIDs, keyIDs)
	return m.importErr
}

func (m *mockSignatureVerifier) ImportKeysFromURL(_ context.Context, keysURL string) error {
	m.importedURLs = append(m.importedURLs, keysURL)
	return m.importErr
}

func (m *mockSignatureVerifier) VerifySignature(_ context.Context, filePath, signatureURL string) error {
	m.verified = append(m.verified, [2]string{filePath, signatureURL})
	return m.verifyErr
}

func TestTarballSourceFetch_DownloadsAndVerifies(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "zlib-1.3.1.tar.gz")
	writeTarGz(t, archive, zlibEntries)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "cauldron/") {
			t.Errorf("User-Agent = %q", got)
		}
		http.ServeFile(w, r, archive)
	}))
	defer server.Close()

	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", fileChecksum(t, archive))

	got, err := src.Fetch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != src.ArchivePath(rec) {
		t.Errorf("Fetch() = %s, want %s", got, src.ArchivePath(rec))
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("downloaded archive missing: %v", err)
	}
	if requests != 1 {
		t.Errorf("server requests = %d, want 1", requests)
	}
}

func TestTarballSourceFetch_ReusesCachedArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "zlib-1.3.1.tar.gz")
	writeTarGz(t, archive, zlibEntries)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.ServeFile(w, r, archive)
	}))
	defer server.Close()

	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", fileChecksum(t, archive))

	if _, err := src.Fetch(context.Background(), rec); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if _, err := src.Fetch(context.Background(), rec); err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if requests != 1 {
		t.Errorf("server requests = %d, want 1 (cached archive should be reused)", requests)
	}
}

func TestTarballSourceFetch_RedownloadsCorruptedCache(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "zlib-1.3.1.tar.gz")
	writeTarGz(t, archive, zlibEntries)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.ServeFile(w, r, archive)
	}))
	defer server.Close()

	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", fileChecksum(t, archive))

	cached, err := src.Fetch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if err := os.WriteFile(cached, []byte("corrupted"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := src.Fetch(context.Background(), rec); err != nil {
		t.Fatalf("Fetch() after corruption error = %v", err)
	}
	if requests != 2 {
		t.Errorf("server requests = %d, want 2 (corrupted cache should be redownloaded)", requests)
	}
	if err := NewChecksumVerifier().VerifyChecksum(context.Background(), cached, rec.Checksum); err != nil {
		t.Errorf("redownloaded archive failed verification: %v", err)
	}
}

func TestTarballSourceFetch_ChecksumMismatch(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "zlib-1.3.1.tar.gz")
	writeTarGz(t, archive, zlibEntries)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	defer server.Close()

	src := newTestTarballSource(t, nil)
	wrong := strings.Repeat("0", 64)
	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", wrong)

	_, err := src.Fetch(context.Background(), rec)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Fetch() error = %v, want ErrChecksumMismatch", err)
	}

	// A mismatched archive must not stay in the cache.
	if _, err := os.Stat(src.ArchivePath(rec)); !os.IsNotExist(err) {
		t.Errorf("mismatched archive left in cache, stat err = %v", err)
	}
}

func TestTarballSourceFetch_RetriesServerErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", "")

	if _, err := src.Fetch(context.Background(), rec); err == nil {
		t.Fatal("Fetch() from failing server should return error")
	}
	if requests < 2 {
		t.Errorf("server requests = %d, want at least 2 (server errors should be retried)", requests)
	}
}

func TestTarballSourceFetch_DoesNotRetryClientErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", "")

	if _, err := src.Fetch(context.Background(), rec); err == nil {
		t.Fatal("Fetch() of missing URL should return error")
	}
	if requests != 1 {
		t.Errorf("server requests = %d, want 1 (client errors should not be retried)", requests)
	}
}

func TestTarballSourceFetch_RejectsNonTarballRecipe(t *testing.T) {
	src := newTestTarballSource(t, nil)
	rec := &entities.Recipe{
		Name:    "mingw-regex",
		Version: "2.5.1",
		Source:  entities.SourceGit,
		Remotes: map[string]string{"origin": "git://example.com/regex.git"},
	}
	rec.Prepare(entities.Defaults{})

	if _, err := src.Fetch(context.Background(), rec); err == nil {
		t.Error("Fetch() on git recipe should return error")
	}
}

func TestTarballSourceFetch_VerifiesSignature(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "zlib-1.3.1.tar.gz")
	writeTarGz(t, archive, zlibEntries)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	defer server.Close()

	verifier := &mockSignatureVerifier{}
	src := newTestTarballSource(t, verifier)

	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", fileChecksum(t, archive))
	rec.Security = entities.Security{
		GPGKeyIDs:    []string{"5ED46A6721D365587791E2AA783FCD8E58BCAFBA"},
		SignatureURL: server.URL + "/zlib-1.3.1.tar.gz.asc",
	}

	got, err := src.Fetch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(verifier.importedIDs) != 1 || verifier.importedIDs[0][0] != rec.Security.GPGKeyIDs[0] {
		t.Errorf("imported key IDs = %v, want %v", verifier.importedIDs, rec.Security.GPGKeyIDs)
	}
	if len(verifier.verified) != 1 {
		t.Fatalf("VerifySignature calls = %d, want 1", len(verifier.verified))
	}
	if verifier.verified[0][0] != got || verifier.verified[0][1] != rec.Security.SignatureURL {
		t.Errorf("VerifySignature(%v), want (%s, %s)", verifier.verified[0], got, rec.Security.SignatureURL)
	}
}

func TestTarballSourceFetch_SignatureFailure(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "zlib-1.3.1.tar.gz")
	writeTarGz(t, archive, zlibEntries)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	defer server.Close()

	verifier := &mockSignatureVerifier{verifyErr: errors.New("bad signature")}
	src := newTestTarballSource(t, verifier)

	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", fileChecksum(t, archive))
	rec.Security = entities.Security{SignatureURL: server.URL + "/zlib-1.3.1.tar.gz.asc"}

	if _, err := src.Fetch(context.Background(), rec); err == nil {
		t.Error("Fetch() with failing signature verification should return error")
	}
}

func TestTarballSourceFetch_SkipsSignatureWithoutVerifier(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "zlib-1.3.1.tar.gz")
	writeTarGz(t, archive, zlibEntries)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	defer server.Close()

	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe(server.URL+"/zlib-1.3.1.tar.gz", fileChecksum(t, archive))
	rec.Security = entities.Security{SignatureURL: server.URL + "/zlib-1.3.1.tar.gz.asc"}

	if _, err := src.Fetch(context.Background(), rec); err != nil {
		t.Errorf("Fetch() without a verifier should only warn, got error %v", err)
	}
}

// stageArchive writes an archive directly into the source's cache so Extract
// can be tested without a download.
func stageArchive(t *testing.T, src *TarballSource, rec *entities.Recipe, write func(*testing.T, string, []tarEntry), entries []tarEntry) {
	t.Helper()

	path := src.ArchivePath(rec)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	write(t, path, entries)
}

func TestTarballSourceExtract(t *testing.T) {
	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe("https://zlib.net/zlib-1.3.1.tar.gz", "")
	stageArchive(t, src, rec, writeTarGz, zlibEntries)

	dir, err := src.Extract(context.Background(), rec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if dir != src.BuildPath(rec) {
		t.Errorf("Extract() = %s, want %s", dir, src.BuildPath(rec))
	}

	// The single zlib-1.3.1/ wrapper directory collapses into the build dir.
	content, err := os.ReadFile(filepath.Join(dir, "zlib.h"))
	if err != nil {
		t.Fatalf("extracted tree is missing zlib.h: %v", err)
	}
	if !strings.Contains(string(content), "ZLIB_VERSION") {
		t.Errorf("zlib.h content = %q", content)
	}
	if _, err := os.Stat(filepath.Join(dir, "src", "inflate.c")); err != nil {
		t.Errorf("extracted tree is missing nested file: %v", err)
	}

	link, err := os.Readlink(filepath.Join(dir, "libz.so"))
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}
	if link != "libz.so.1.3.1" {
		t.Errorf("symlink target = %s, want libz.so.1.3.1", link)
	}
}

func TestTarballSourceExtract_ReplacesPreviousTree(t *testing.T) {
	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe("https://zlib.net/zlib-1.3.1.tar.gz", "")
	stageArchive(t, src, rec, writeTarGz, zlibEntries)

	dir, err := src.Extract(context.Background(), rec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	marker := filepath.Join(dir, "marker.txt")
	if err := os.WriteFile(marker, []byte("stale"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := src.Extract(context.Background(), rec); err != nil {
		t.Fatalf("second Extract() error = %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Errorf("previous tree was not replaced, stat err = %v", err)
	}
}

func TestTarballSourceExtract_MultipleTopLevelEntries(t *testing.T) {
	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe("https://example.com/flat-1.0.tar.gz", "")
	stageArchive(t, src, rec, writeTarGz, []tarEntry{
		{name: "README", body: "flat archive\n"},
		{name: "main.c", body: "int main(void) { return 0; }\n"},
	})

	dir, err := src.Extract(context.Background(), rec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for _, name := range []string{"README", "main.c"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("extracted tree is missing %s: %v", name, err)
		}
	}
}

func TestTarballSourceExtract_XZArchive(t *testing.T) {
	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe("https://example.com/orc-0.4.41.tar.xz", "")
	stageArchive(t, src, rec, writeTarXz, []tarEntry{
		{name: "orc-0.4.41/"},
		{name: "orc-0.4.41/orc.c", body: "void orc(void);\n"},
	})

	dir, err := src.Extract(context.Background(), rec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "orc.c")); err != nil {
		t.Errorf("extracted tree is missing orc.c: %v", err)
	}
}

func TestTarballSourceExtract_RequiresCachedArchive(t *testing.T) {
	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe("https://zlib.net/zlib-1.3.1.tar.gz", "")

	if _, err := src.Extract(context.Background(), rec); err == nil {
		t.Error("Extract() before Fetch() should return error")
	}
}

func TestTarballSourceExtract_RejectsPathTraversal(t *testing.T) {
	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe("https://example.com/evil-1.0.tar.gz", "")
	stageArchive(t, src, rec, writeTarGz, []tarEntry{
		{name: "../evil.txt", body: "escaped\n"},
	})

	if _, err := src.Extract(context.Background(), rec); err == nil {
		t.Error("Extract() of archive with traversal should return error")
	}
}

func TestTarballSourceExtract_UnsupportedFormat(t *testing.T) {
	src := newTestTarballSource(t, nil)
	rec := tarballTestRecipe("https://example.com/blob-1.0.zip", "")

	path := src.ArchivePath(rec)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("PK..."), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := src.Extract(context.Background(), rec); err == nil {
		t.Error("Extract() of unsupported format should return error")
	}
}
