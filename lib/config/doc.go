// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for PeerSync commands.
//
// Configuration is loaded from a single YAML file specified by:
//   - PEERSYNC_CONFIG environment variable, or
//   - --config flag passed to the command
//
// When neither is present, built-in defaults apply (library under
// ~/.local/share/peersync, no ICE servers, built-in protocol timing).
// There is no search path and no per-directory discovery.
package config
