package core

import "strings"

// Build metadata, injected with -ldflags (see BuildLdflags). Unset values
// keep their defaults.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// versionPkg is the import path the ldflags -X flags target.
const versionPkg = "tryon_backend/core"

// GetVersion returns the build version.
func GetVersion() string {
	return Version
}

// GetVersionInfo returns version, build time and commit on one line, e.g.
// "v1.2.0 (built 2026-03-01T10:30:00Z, commit abc1234)".
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}

// BuildLdflags returns the -X flags that inject the given values. Empty
// values are skipped.
//
//	go build -ldflags "$(BuildLdflags ...)" .
func BuildLdflags(version, buildTime, gitCommit string) string {
	var flags []string
	for _, kv := range [][2]string{
		{"Version", version},
		{"BuildTime", buildTime},
		{"GitCommit", gitCommit},
	} {
		if kv[1] != "" {
			flags = append(flags, "-X "+versionPkg+"."+kv[0]+"="+kv[1])
		}
	}
	return strings.Join(flags, " ")
}
