// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is a minimal command/subcommand dispatcher over pflag.
// It exists so the peersync binary gets consistent help output and
// flag handling without pulling in a full CLI framework.
package cli
