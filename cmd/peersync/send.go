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
	"github.com/atelier-foundation/peersync/transfer"
)

func sendCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "send",
		Summary: "Share this library with a peer",
		Description: `Publishes a pairing code through the rendezvous server and waits for
a peer to connect. After both sides confirm the fingerprint, every
record and character in the local library is sent.`,
		Usage: "peersync send [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("send takes no arguments")
			}
			return runSend(ctx, &flags)
		},
	}
}

func runSend(ctx context.Context, flags *commonFlags) error {
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

	var sess *session.Session
	sess = session.New(newFactory(cfg, logger), session.Options{}, clock.Real(), logger,
		func(status session.Status) {
			switch status {
			case session.StatusWaiting:
				fmt.Printf("Pairing code: %s\n", sess.Code())
				fmt.Println("Waiting for a peer to connect...")
			case session.StatusTransferring:
				fmt.Println("Transferring...")
			}
		})
	defer sess.Close()

	if err := sess.StartSender(ctx); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	if err := confirmFingerprint(sess, flags.assumeYes); err != nil {
		return err
	}

	sender := transfer.NewSender(sess, env.library, env.blobs, transfer.SenderOptions{
		AckTimeout: cfg.Transfer.AckTimeout,
		Flow:       transfer.FlowOptions{DrainTimeout: cfg.Transfer.DrainTimeout},
	}, clock.Real(), logger, printProgress)

	startedAt := time.Now()
	summary, runErr := sender.Run(ctx)

	report := transfer.Report{
		Role:        "sender",
		Peer:        peerName(sess),
		Fingerprint: sess.Fingerprint(),
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		Sent:        summary.Sent,
		Failed:      summary.Failed,
	}
	if summary.Remote != nil {
		report.Imported = summary.Remote.Imported
		report.Skipped = summary.Remote.Skipped
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	saveReport(cfg.Paths.State, report, logger)

	if runErr != nil {
		return fmt.Errorf("transfer failed: %w", runErr)
	}
	sess.Complete()

	fmt.Printf("Done. Sent %d item(s)", summary.Sent)
	if summary.Failed > 0 {
		fmt.Printf(", %d failed", summary.Failed)
	}
	if summary.Remote != nil {
		fmt.Printf("; peer imported %d, skipped %d", summary.Remote.Imported, summary.Remote.Skipped)
	}
	fmt.Println(".")
	return nil
}
