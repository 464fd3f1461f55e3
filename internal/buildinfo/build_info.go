// Package buildinfo describes the build of the hybridagg binary.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

const unknown = "n/a"

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
	GoVersion  string
}

// New creates the build info from the values set by the linker. Missing values are filled in
// from the version control data embedded by the Go toolchain.
func New(version, commitHash, buildDate string) BuildInfo {
	i := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate, GoVersion: unknown}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i.withDefaults()
	}
	return i.merge(bi).withDefaults()
}

func (i BuildInfo) merge(bi *debug.BuildInfo) BuildInfo {
	if bi.GoVersion != "" {
		i.GoVersion = bi.GoVersion
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" || i.CommitHash == unknown {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" || i.BuildDate == "<unknown>" {
				i.BuildDate = s.Value
			}
		}
	}
	return i
}

func (i BuildInfo) withDefaults() BuildInfo {
	if i.Version == "" {
		i.Version = "dev"
	}
	if i.CommitHash == "" {
		i.CommitHash = unknown
	}
	if i.BuildDate == "" {
		i.BuildDate = "<unknown>"
	}
	return i
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s with %s", i.Version, i.CommitHash, i.BuildDate, i.GoVersion)
}
