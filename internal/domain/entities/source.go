package entities

// SourceKind selects the acquisition strategy for a recipe's sources.
type SourceKind string

// Supported source kinds. Git is the default for recipes that do not
// declare one.
const (
	// SourceGit checks out a revision from a cached git mirror.
	SourceGit SourceKind = "git"

	// SourceGitTarball is a git checkout of sources that were originally
	// released as a tarball: after checkout, autotools input timestamps
	// are normalized so configure is not regenerated spuriously.
	SourceGitTarball SourceKind = "git-tarball"

	// SourceTarball downloads, verifies, and unpacks a release tarball.
	SourceTarball SourceKind = "tarball"

	// SourceLocal copies a local directory tree.
	SourceLocal SourceKind = "local"

	// SourceCustom leaves acquisition entirely to the orchestrator.
	SourceCustom SourceKind = "custom"
)

// Valid reports whether k names a supported kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceGit, SourceGitTarball, SourceTarball, SourceLocal, SourceCustom:
		return true
	}
	return false
}

// IsGit reports whether sources of this kind are acquired through the
// git cache.
func (k SourceKind) IsGit() bool {
	return k == SourceGit || k == SourceGitTarball
}
