// SPDX-License-Identifier: MIT
//
// Package build exposes the name, build time, commit and version embedded
// into the spectrail binary with -ldflags:
//
//	go build -ldflags "-X spectrail/pkg/build.buildVersion=v0.3.0 ..."
//
// Binaries built without the flags report development placeholders.
package build

import (
	"errors"
	"fmt"
)

// Development placeholders used when a flag was not linked in.
const (
	DevName    = "spectrail"
	DevTime    = "unknown"
	DevCommit  = "none"
	DevVersion = "dev"
)

// Info describes the running binary.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String renders the one-line form printed by "spectrail version".
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = Info{
		Name:    DevName,
		Time:    DevTime,
		Commit:  DevCommit,
		Version: DevVersion,
	}
)

// Initialize copies the linked build flags into the package Info. A missing
// flag keeps its development placeholder and is reported in the returned
// error, which callers log as a warning rather than treat as fatal.
func Initialize() error {
	var missing []error
	pick := func(flag, value, fallback string) string {
		if value == "" {
			missing = append(missing, fmt.Errorf("%s is not set", flag))
			return fallback
		}
		return value
	}

	buildInfo = Info{
		Name:    pick("BuildName", buildName, DevName),
		Time:    pick("BuildTime", buildTime, DevTime),
		Commit:  pick("BuildCommit", buildCommit, DevCommit),
		Version: pick("BuildVersion", buildVersion, DevVersion),
	}
	return errors.Join(missing...)
}

// Current returns the build information. Call Initialize first.
func Current() Info {
	return buildInfo
}

// IsDevelopment reports whether the binary was built without a version flag.
func IsDevelopment() bool {
	return buildInfo.Version == DevVersion
}
