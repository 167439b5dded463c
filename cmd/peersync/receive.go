// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/atelier-foundation/peersync/cmd/peersync/cli"
	"github.com/atelier-foundation/peersync/lib/clock"
	"github.com/atelier-foundation/peersync/session"
	"github.com/atelier-foundation/peersync/store"
	"github.com/atelier-foundation/peersync/transfer"
)

func receiveCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "receive",
		Summary: "Import a library from a peer",
		Description: `Connects to a sender identified by its pairing code. After both sides
confirm the fingerprint, incoming records and characters are imported
into the local library. Items already present (same UUID or name) are
skipped, so receiving twice is safe.`,
		Usage: "peersync receive <code> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("receive", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: peersync receive <code>")
			}
			return runReceive(ctx, &flags, args[0])
		},
	}
}

func runReceive(ctx context.Context, flags *commonFlags, code string) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(flags.logLevel)

	env, err := openEnvironment(cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	sess := session.New(newFactory(cfg, logger), session.Options{}, clock.Real(), logger,
		func(status session.Status) {
			switch status {
			case session.StatusConnecting:
				fmt.Println("Connecting...")
			case session.StatusTransferring:
				fmt.Println("Receiving...")
			}
		})
	defer sess.Close()

	if err := sess.Connect(ctx, code); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	if err := confirmFingerprint(sess, flags.assumeYes); err != nil {
		return err
	}

	receiver := transfer.NewReceiver(sess, env.library, env.blobs, store.DataURIThumbnailer{},
		transfer.ReceiverOptions{
			ImageWait: cfg.Transfer.ImageWait,
			VideoWait: cfg.Transfer.VideoWait,
		}, clock.Real(), logger, printProgress)

	startedAt := time.Now()
	counters, runErr := receiver.Run(ctx)

	report := transfer.Report{
		Role:        "receiver",
		Peer:        peerName(sess),
		Fingerprint: sess.Fingerprint(),
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		Imported:    counters.Imported,
		Skipped:     counters.Skipped,
		Failed:      counters.Failed,
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	saveReport(cfg.Paths.State, report, logger)

	if runErr != nil {
		return fmt.Errorf("transfer failed: %w", runErr)
	}
	sess.Complete()

	fmt.Printf("Done. Imported %d, skipped %d, failed %d.\n",
		counters.Imported, counters.Skipped, counters.Failed)
	return nil
}
