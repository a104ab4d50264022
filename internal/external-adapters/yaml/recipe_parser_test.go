package yaml

import (
	"testing"

	"github.com/ochairo/cauldron/internal/domain/entities"
)

func TestRecipeParser_Parse_Valid(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`name: mingw-regex
version: "2.5"
description: POSIX regex library for Windows cross-compilation targets
licenses:
  - LGPL-2.1-or-later
source: git
remotes:
  origin: git://git.code.sf.net/p/mingw/regex
commit: origin/master
autoreconf: true
patches:
  - 0001-Fix-compilation.patch
libraries:
  - libregex
headers:
  - include/regex.h
`)

	recipe, err := parser.Parse(yamlData)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if recipe.Name != "mingw-regex" {
		t.Errorf("Name = %v, want mingw-regex", recipe.Name)
	}
	if recipe.Version != "2.5" {
		t.Errorf("Version = %v, want 2.5", recipe.Version)
	}
	if recipe.Source != entities.SourceGit {
		t.Errorf("Source = %v, want git", recipe.Source)
	}
	if !recipe.Autoreconf {
		t.Error("Autoreconf should be true")
	}
	if got := recipe.Remotes["origin"]; got != "git://git.code.sf.net/p/mingw/regex" {
		t.Errorf("Remotes[origin] = %v, want git://git.code.sf.net/p/mingw/regex", got)
	}
	if len(recipe.Licenses) != 1 || recipe.Licenses[0] != entities.LicenseLGPL21Plus {
		t.Errorf("Licenses = %v, want [LGPL-2.1-or-later]", recipe.Licenses)
	}
	if len(recipe.Patches) != 1 || recipe.Patches[0] != "0001-Fix-compilation.patch" {
		t.Errorf("Patches = %v, want [0001-Fix-compilation.patch]", recipe.Patches)
	}
	if len(recipe.Libraries) != 1 || recipe.Libraries[0] != "libregex" {
		t.Errorf("Libraries = %v, want [libregex]", recipe.Libraries)
	}
	if len(recipe.Headers) != 1 || recipe.Headers[0] != "include/regex.h" {
		t.Errorf("Headers = %v, want [include/regex.h]", recipe.Headers)
	}
}

func TestRecipeParser_Parse_TarballWithSecurity(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`name: zlib
version: "1.3.1"
source: tarball
url: https://zlib.net/{name}-{version}.tar.gz
checksum: 9a93b2b7dfdac77ceba5a558a580e74667dd6fede4585b91eefb60f03b72df23
security:
  gpg_key_ids:
    - 5ED46A6721D365587791E2AA783FCD8E58BCAFBA
  signature_url: https://zlib.net/{name}-{version}.tar.gz.asc
libraries:
  - libz
`)

	recipe, err := parser.Parse(yamlData)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if recipe.Source != entities.SourceTarball {
		t.Errorf("Source = %v, want tarball", recipe.Source)
	}
	if recipe.URL != "https://zlib.net/{name}-{version}.tar.gz" {
		t.Errorf("URL = %v, parser must not expand placeholders", recipe.URL)
	}
	if recipe.Checksum == "" {
		t.Error("Checksum should be set")
	}
	if len(recipe.Security.GPGKeyIDs) != 1 {
		t.Errorf("Security.GPGKeyIDs = %v, want one key", recipe.Security.GPGKeyIDs)
	}
	if recipe.Security.SignatureURL == "" {
		t.Error("Security.SignatureURL should be set")
	}
}

func TestRecipeParser_Parse_MissingName(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`version: "1.0"
description: Test package
`)

	_, err := parser.Parse(yamlData)
	if err == nil {
		t.Error("Parse() should return error for missing name")
	}
	if err != nil && err.Error() != "recipe must have a name" {
		t.Errorf("Parse() error = %v, want 'recipe must have a name'", err)
	}
}

func TestRecipeParser_Parse_MissingVersion(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`name: libfoo
description: Test package
`)

	_, err := parser.Parse(yamlData)
	if err == nil {
		t.Error("Parse() should return error for missing version")
	}
}

func TestRecipeParser_Parse_InvalidYAML(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`name: test
  invalid: [broken yaml
`)

	_, err := parser.Parse(yamlData)
	if err == nil {
		t.Error("Parse() should return error for invalid YAML")
	}
}

func TestRecipeParser_Parse_DefaultKind(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`name: libfoo
version: "1.0"
`)

	recipe, err := parser.Parse(yamlData)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if recipe.Source != entities.SourceGit {
		t.Errorf("Source = %v, want default git", recipe.Source)
	}
}

func TestRecipeParser_Parse_UnsupportedKind(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`name: libfoo
version: "1.0"
source: svn
`)

	_, err := parser.Parse(yamlData)
	if err == nil {
		t.Error("Parse() should return error for unsupported source kind")
	}
}

func TestRecipeParser_Parse_PatchOrder(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`name: libord
version: "1.0"
patches:
  - 0001-first.patch
  - 0002-second.patch
  - 0003-third.patch
`)

	recipe, err := parser.Parse(yamlData)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{"0001-first.patch", "0002-second.patch", "0003-third.patch"}
	for i, patch := range want {
		if recipe.Patches[i] != patch {
			t.Fatalf("Patches[%d] = %v, want %v (declaration order must be preserved)", i, recipe.Patches[i], patch)
		}
	}
}

func TestRecipeParser_Parse_EmptyLists(t *testing.T) {
	parser := NewRecipeParser()
	yamlData := []byte(`name: libfoo
version: "1.0"
patches: []
libraries: []
remotes: {}
`)

	recipe, err := parser.Parse(yamlData)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(recipe.Patches) != 0 {
		t.Errorf("Patches should be empty, got %v", recipe.Patches)
	}
	if len(recipe.Remotes) != 0 {
		t.Errorf("Remotes should be empty, got %v", recipe.Remotes)
	}
}
