package entities

import "strings"

// Recipe describes how to obtain and build one external software component.
// Recipes are constructed once at load time, prepared by the registry before
// publication, and read-only afterwards.
type Recipe struct {
	Name        string
	Version     string
	Description string
	Licenses    []License

	// Source selects the acquisition strategy. Empty means SourceGit.
	Source SourceKind

	// Tarball acquisition. URL may contain {name} and {version}
	// placeholders, expanded by Prepare.
	URL      string
	Checksum string

	// Local acquisition: directory tree to copy.
	Path string

	// Git acquisition. Commit is a commit, branch, or tag reference.
	// Remotes maps remote names to URLs; "origin" is the one the
	// orchestrator fetches from.
	Commit  string
	Remotes map[string]string

	// Patches are applied by the orchestrator in declaration order,
	// before building. Relative entries resolve against the recipe's
	// directory under the recipes dir. Strip is the patch -p level.
	Patches []string
	Strip   int

	// Autoreconf asks the orchestrator to regenerate build scripts
	// before the configure step.
	Autoreconf bool

	// Artifacts this recipe yields, registered under Name so that
	// downstream recipes can depend on them.
	Libraries []string
	Headers   []string

	// Dependencies are recipe names this one builds against. Resolution
	// is the orchestrator's concern; carried here as metadata.
	Dependencies []string

	Security Security

	prepared bool
}

// Security holds tarball verification settings.
type Security struct {
	GPGKeyIDs    []string
	GPGKeysURL   string
	SignatureURL string
}

// Defaults carries the configured values Prepare derives fields from.
type Defaults struct {
	// GitRoot is the base URL recipes without an explicit origin derive
	// it from, as <GitRoot>/<name>.git. Empty disables the derivation.
	GitRoot string

	// Branch names the branch the default commit reference points at.
	// Empty means "master".
	Branch string
}

// Prepare computes derived fields once, after construction and before the
// recipe is published to any reader. Its only side effects are on the
// recipe's own fields:
//
//   - git kinds get a remotes map with "origin" derived from the git root
//     when absent, "upstream" mirroring "origin" when absent, and a default
//     commit reference of origin/<branch>,
//   - tarball recipes get {name} and {version} expanded in URL and
//     signature URL,
//   - Source defaults to git and Strip to 1.
//
// Calling Prepare again is a no-op; the derivations themselves are also
// deterministic, so repeated invocations yield identical values.
func (r *Recipe) Prepare(d Defaults) {
	if r.prepared {
		return
	}

	if r.Source == "" {
		r.Source = SourceGit
	}
	if r.Strip == 0 {
		r.Strip = 1
	}

	switch {
	case r.Source.IsGit():
		if r.Remotes == nil {
			r.Remotes = make(map[string]string)
		}
		if _, ok := r.Remotes["origin"]; !ok && d.GitRoot != "" {
			r.Remotes["origin"] = strings.TrimSuffix(d.GitRoot, "/") + "/" + r.Name + ".git"
		}
		if origin, ok := r.Remotes["origin"]; ok {
			if _, ok := r.Remotes["upstream"]; !ok {
				r.Remotes["upstream"] = origin
			}
		}
		if r.Commit == "" {
			branch := d.Branch
			if branch == "" {
				branch = "master"
			}
			r.Commit = "origin/" + branch
		}

	case r.Source == SourceTarball:
		r.URL = r.expandPlaceholders(r.URL)
		r.Security.SignatureURL = r.expandPlaceholders(r.Security.SignatureURL)
	}

	r.prepared = true
}

// Prepared reports whether Prepare has run.
func (r *Recipe) Prepared() bool {
	return r.prepared
}

// expandPlaceholders substitutes {name} and {version} in s.
func (r *Recipe) expandPlaceholders(s string) string {
	s = strings.ReplaceAll(s, "{name}", r.Name)
	s = strings.ReplaceAll(s, "{version}", r.Version)
	return s
}
