// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/atelier-foundation/peersync/cmd/peersync/cli"
	"github.com/atelier-foundation/peersync/transfer"
)

func reportCommand() *cli.Command {
	var configPath string
	var limit int
	return &cli.Command{
		Name:    "report",
		Summary: "Show past transfer outcomes",
		Description: `Lists the transfer reports saved in the state directory, newest
first. Each transfer (send or receive) leaves one report behind.`,
		Usage: "peersync report [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("report", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "",
				"config file path (default: $PEERSYNC_CONFIG, then built-in defaults)")
			flagSet.IntVar(&limit, "limit", 10, "maximum number of reports to show")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("report takes no arguments")
			}
			return runReport(configPath, limit)
		},
	}
}

func runReport(configPath string, limit int) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return err
	}

	reports, err := transfer.ListReports(cfg.Paths.State)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("No transfer reports.")
		return nil
	}
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tROLE\tFINGERPRINT\tSENT\tIMPORTED\tSKIPPED\tFAILED\tERROR")
	for _, report := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			report.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			report.Role,
			report.Fingerprint,
			report.Sent,
			report.Imported,
			report.Skipped,
			report.Failed,
			report.Error,
		)
	}
	return tw.Flush()
}
