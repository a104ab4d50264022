// Package gpg verifies detached GPG signatures on downloaded source archives.
package gpg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// armoredSigPrefix is the start of an ASCII-armored detached signature.
const armoredSigPrefix = "-----BEGIN PGP SIGNATURE---"

// defaultKeyservers are tried in order when importing keys by fingerprint.
var defaultKeyservers = []string{
	"https://keys.openpgp.org",
	"https://keyserver.ubuntu.com",
	"https://pgp.mit.edu",
}

// Verifier implements GPG signature verification using ProtonMail's go-crypto,
// a maintained fork of golang.org/x/crypto/openpgp.
// This is in external-adapters to isolate the external dependency
type Verifier struct {
	keyring    openpgp.EntityList
	keyservers []string
	httpClient *http.Client
}

// NewVerifier creates a new GPG verifier
func NewVerifier() *Verifier {
	return &Verifier{
		keyring:    make(openpgp.EntityList, 0),
		keyservers: defaultKeyservers,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ImportKeys imports GPG keys by fingerprint, trying each keyserver until
// one responds with a key whose fingerprint matches the requested ID.
func (v *Verifier) ImportKeys(ctx context.Context, keyIDs []string) error {
	if len(keyIDs) == 0 {
		return fmt.Errorf("no key IDs provided")
	}

	for _, keyID := range keyIDs {
		if keyID == "" {
			continue
		}

		var lastErr error
		imported := false

		for _, keyserver := range v.keyservers {
			// Keyservers expose one of two lookup endpoints
			urls := []string{
				fmt.Sprintf("%s/vks/v1/by-fingerprint/%s", keyserver, keyID),
				fmt.Sprintf("%s/pks/lookup?op=get&search=0x%s", keyserver, keyID),
			}

			for _, url := range urls {
				entities, err := v.fetchArmoredKeys(ctx, url)
				if err != nil {
					lastErr = err
					continue
				}

				// Only accept keys whose fingerprint matches the requested
				// ID, in full or in the short 16-character form.
				if !matchesFingerprint(entities, keyID) {
					lastErr = fmt.Errorf("no keys matching fingerprint %s", keyID)
					continue
				}

				v.keyring = append(v.keyring, entities...)
				imported = true
				break
			}

			if imported {
				break
			}
		}

		if !imported {
			return fmt.Errorf("failed to import key %s from all keyservers: %w", keyID, lastErr)
		}
	}

	return nil
}

// ImportKeysFromURL imports every GPG key from a KEYS file URL, the
// convention used by projects that publish their whole release keyring.
func (v *Verifier) ImportKeysFromURL(ctx context.Context, keysURL string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", keysURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download KEYS file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("KEYS file download failed with status %d", resp.StatusCode)
	}

	// Some projects ship large keyring files, cap at 10MB
	limitedReader := io.LimitReader(resp.Body, 10*1024*1024)

	entities, err := openpgp.ReadArmoredKeyRing(limitedReader)
	if err != nil {
		return fmt.Errorf("failed to parse KEYS file: %w", err)
	}

	if len(entities) == 0 {
		return fmt.Errorf("no keys found in KEYS file")
	}

	// Expired keys are kept, verification against them fails later
	v.keyring = append(v.keyring, entities...)

	return nil
}

// ImportKeyFromFile imports a GPG key from a local file, accepting armored
// and binary formats.
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	//nolint:gosec // G304: keyPath is user-provided for GPG key import
	f, err := os.Open(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		if _, seekErr := f.Seek(0, 0); seekErr != nil {
			return fmt.Errorf("failed to reset file: %w", seekErr)
		}
		entities, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entities) == 0 {
		return fmt.Errorf("no keys found in file")
	}

	v.keyring = append(v.keyring, entities...)
	return nil
}

// VerifySignature downloads a detached signature and verifies it against
// the given file using the imported keyring.
func (v *Verifier) VerifySignature(ctx context.Context, filePath, sigURL string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported, call ImportKeys first")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", sigURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create signature download request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download signature: %w", err)
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signature download failed with status %d", resp.StatusCode)
	}

	// Detached signatures are tiny, anything past 10KB is not one
	limitedReader := io.LimitReader(resp.Body, 10*1024)
	sigData, err := io.ReadAll(limitedReader)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}

	if len(sigData) < 10 {
		return fmt.Errorf("signature file too small to be valid GPG signature")
	}

	//nolint:gosec // G304: filePath is user-provided for GPG verification
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	var verifyErr error
	if isArmoredSignature(sigData) {
		_, verifyErr = openpgp.CheckArmoredDetachedSignature(v.keyring, f, bytes.NewReader(sigData), nil)
	} else {
		_, verifyErr = openpgp.CheckDetachedSignature(v.keyring, f, bytes.NewReader(sigData), nil)
	}

	if verifyErr != nil {
		return fmt.Errorf("signature verification failed: %w", verifyErr)
	}

	return nil
}

// VerifySignatureFromFile verifies a detached signature from a local file
func (v *Verifier) VerifySignatureFromFile(filePath, sigPath string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported, call ImportKeys first")
	}

	//nolint:gosec // G304: sigPath is user-provided for GPG verification
	sigData, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}

	//nolint:gosec // G304: filePath is user-provided for GPG verification
	dataFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer dataFile.Close()

	var verifyErr error
	if isArmoredSignature(sigData) {
		_, verifyErr = openpgp.CheckArmoredDetachedSignature(v.keyring, dataFile, bytes.NewReader(sigData), nil)
	} else {
		_, verifyErr = openpgp.CheckDetachedSignature(v.keyring, dataFile, bytes.NewReader(sigData), nil)
	}

	if verifyErr != nil {
		return fmt.Errorf("signature verification failed: %w", verifyErr)
	}

	return nil
}

// GetKeyringSize returns the number of keys in the keyring
func (v *Verifier) GetKeyringSize() int {
	return len(v.keyring)
}

// ClearKeyring clears all imported keys
func (v *Verifier) ClearKeyring() {
	v.keyring = make(openpgp.EntityList, 0)
}

// fetchArmoredKeys downloads and parses an armored keyring from a URL.
func (v *Verifier) fetchArmoredKeys(ctx context.Context, url string) (openpgp.EntityList, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keyserver returned status %d", resp.StatusCode)
	}

	entities, err := openpgp.ReadArmoredKeyRing(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found in response")
	}
	return entities, nil
}

// matchesFingerprint reports whether any entity matches the requested key ID,
// comparing the full fingerprint and the short form (last 16 hex characters).
func matchesFingerprint(entities openpgp.EntityList, keyID string) bool {
	for _, entity := range entities {
		fingerprint := fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint)
		if fingerprint == keyID {
			return true
		}
		if len(fingerprint) >= 16 && fingerprint[len(fingerprint)-16:] == keyID {
			return true
		}
	}
	return false
}

func isArmoredSignature(sig []byte) bool {
	return len(sig) >= len(armoredSigPrefix) && string(sig[:len(armoredSigPrefix)]) == armoredSigPrefix
}
