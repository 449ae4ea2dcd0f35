// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// semanticAlphabet is the set of characters that are permitted for use in a
// pre-release identifier.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// These constants define the application version. The package descriptor
// declares the version as MAJOR.MINOR, so no patch component is rendered.
const (
	// AppMajor defines the major version of this binary.
	AppMajor uint = 1

	// AppMinor defines the minor version of this binary.
	AppMinor uint = 0
)

// PreRelease MUST only contain characters from semanticAlphabet. It may be
// overridden at link time:
//
//	-ldflags "-X github.com/decred/dcrspendfrom/build.PreRelease=rc1"
var PreRelease = ""

// Version returns the application version as a properly formed string.
func Version() string {
	version := fmt.Sprintf("%d.%d", AppMajor, AppMinor)

	preRelease := normalizeVerString(PreRelease)
	if preRelease != "" {
		version = fmt.Sprintf("%s-%s", version, preRelease)
	}

	return version
}

// normalizeVerString returns the passed string stripped of all characters
// which are not valid according to the semantic versioning guidelines for
// pre-release version and build metadata strings.
func normalizeVerString(str string) string {
	var result strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SourceCommit returns the VCS revision the binary was built from, suffixed
// with ".dirty" when the work tree had local modifications. It is empty when
// the toolchain recorded no VCS information.
func SourceCommit() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var vcs, revision, dirty string
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs":
			vcs = bs.Value
		case "vcs.revision":
			revision = bs.Value
		case "vcs.modified":
			if bs.Value == "true" {
				dirty = ".dirty"
			}
		}
	}
	if vcs == "" {
		return ""
	}
	if vcs == "git" && len(revision) > 9 {
		revision = revision[:9]
	}
	return revision + dirty
}
