// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes the build version of PeerSync binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/atelier-foundation/peersync/lib/version.Version=v1.2.3".
var Version = "dev"

// Info returns the version plus the VCS revision when the binary was
// built from a module-aware checkout.
func Info() string {
	revision := ""
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 8 {
				revision = setting.Value[:8]
			}
		}
	}
	if revision == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, revision)
}

// Print writes "name version" to standard output.
func Print(name string) {
	fmt.Printf("%s %s\n", name, Info())
}
