package build

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

// Descriptor is the metadata record the Go toolchain and the binary itself
// use to identify this software: what it is called, which version it is, who
// wrote it, which library it depends on and which executables it installs.
type Descriptor struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	AuthorEmail string   `json:"author_email"`
	Requires    []string `json:"requires"`
	Scripts     []string `json:"scripts"`
}

// Package is the descriptor of this module. It is static and never mutated
// at runtime.
var Package = Descriptor{
	Name:        "dcrspendfrom",
	Version:     Version(),
	Description: `Command-line utility for Decred "coin control"`,
	Author:      "The Decred developers",
	AuthorEmail: "contact@decred.org",
	Requires:    []string{"github.com/decred/dcrd/rpcclient/v8"},
	Scripts:     []string{"cmd/dcrspendfrom"},
}

var (
	// ErrMissingName is returned when a descriptor has an empty name.
	ErrMissingName = errors.New("descriptor name must not be empty")

	// ErrMissingVersion is returned when a descriptor has an empty
	// version.
	ErrMissingVersion = errors.New("descriptor version must not be empty")
)

// Validate checks the invariants a packaging tool relies on: name and version
// are present, the version is well formed and the dependency and script lists
// contain no empty or duplicated entries.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(d.Version) == "" {
		return ErrMissingVersion
	}
	if err := checkVersion(d.Version); err != nil {
		return err
	}
	if err := checkEntries("requires", d.Requires); err != nil {
		return err
	}
	return checkEntries("scripts", d.Scripts)
}

// checkVersion accepts MAJOR.MINOR or MAJOR.MINOR.PATCH, optionally followed
// by a pre-release identifier drawn from semanticAlphabet.
func checkVersion(version string) error {
	core, preRelease, hasPreRelease := strings.Cut(version, "-")
	if hasPreRelease && (preRelease == "" ||
		normalizeVerString(preRelease) != preRelease) {

		return fmt.Errorf("malformed pre-release in version %q", version)
	}

	parts := strings.Split(core, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("malformed version %q: want MAJOR.MINOR"+
			"[.PATCH]", version)
	}
	for _, part := range parts {
		if _, err := strconv.ParseUint(part, 10, 32); err != nil {
			return fmt.Errorf("malformed version %q: component "+
				"%q is not numeric", version, part)
		}
	}

	return nil
}

func checkEntries(field string, entries []string) error {
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			return fmt.Errorf("%s: empty entry", field)
		}
		if _, ok := seen[entry]; ok {
			return fmt.Errorf("%s: duplicate entry %q", field, entry)
		}
		seen[entry] = struct{}{}
	}
	return nil
}

// ResolvedRequires maps every declared requirement to the module version the
// running binary was linked against. Versions are empty when the binary carries
// no build information, which is the case under `go test`.
func (d *Descriptor) ResolvedRequires() map[string]string {
	resolved := make(map[string]string, len(d.Requires))
	for _, req := range d.Requires {
		resolved[req] = ""
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return resolved
	}
	for _, dep := range bi.Deps {
		if _, ok := resolved[dep.Path]; !ok {
			continue
		}
		version := dep.Version
		if dep.Replace != nil {
			version = dep.Replace.Version
		}
		resolved[dep.Path] = version
	}

	return resolved
}

// String returns the conventional "name version" rendering.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s", d.Name, d.Version)
}
