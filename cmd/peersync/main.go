// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atelier-foundation/peersync/cmd/peersync/cli"
	"github.com/atelier-foundation/peersync/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cli.Command{
		Name: "peersync",
		Description: `PeerSync: transfer generation history and characters between two
machines over a direct peer-to-peer connection.

One side runs 'peersync send' and reads out the pairing code; the
other runs 'peersync receive <code>'. Both sides compare the short
fingerprint before any data moves.`,
		Subcommands: []*cli.Command{
			sendCommand(),
			receiveCommand(),
			reportCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string) error {
					version.Print("peersync")
					return nil
				},
			},
		},
	}
	return root.Execute(ctx, os.Args[1:])
}
