// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/atelier-foundation/peersync/lib/config"
	"github.com/atelier-foundation/peersync/session"
	"github.com/atelier-foundation/peersync/store"
	"github.com/atelier-foundation/peersync/transfer"
	"github.com/atelier-foundation/peersync/transport"
)

// commonFlags are shared by the send and receive subcommands.
type commonFlags struct {
	configPath   string
	signalingURL string
	logLevel     string
	assumeYes    bool
}

func (f *commonFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.configPath, "config", "",
		"config file path (default: $PEERSYNC_CONFIG, then built-in defaults)")
	flags.StringVar(&f.signalingURL, "signaling-url", "",
		"rendezvous server base URL (overrides the config file)")
	flags.StringVar(&f.logLevel, "log-level", "warn",
		"log level: debug, info, warn, error")
	flags.BoolVar(&f.assumeYes, "yes", false,
		"confirm the pairing fingerprint without prompting")
}

// loadConfig resolves the config for a transfer command. A signaling
// URL is required: without a rendezvous there is no way to exchange
// SDP with the peer.
func (f *commonFlags) loadConfig() (*config.Config, error) {
	cfg, err := loadConfigFile(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.signalingURL != "" {
		cfg.Signaling.URL = f.signalingURL
	}
	if cfg.Signaling.URL == "" {
		return nil, fmt.Errorf("no signaling URL configured; set signaling.url in the config file or pass --signaling-url")
	}
	return cfg, nil
}

func loadConfigFile(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}

// environment bundles the local library handles a transfer needs.
type environment struct {
	library *store.SQLiteLibrary
	blobs   *store.FileBlobStore
}

func openEnvironment(cfg *config.Config, logger *slog.Logger) (*environment, error) {
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	library, err := store.OpenLibrary(cfg.Paths.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}
	blobs, err := store.NewFileBlobStore(cfg.Paths.Blobs)
	if err != nil {
		library.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	return &environment{library: library, blobs: blobs}, nil
}

func (e *environment) Close() error {
	return e.library.Close()
}

func newFactory(cfg *config.Config, logger *slog.Logger) transport.Factory {
	signaler := transport.NewHTTPSignaler(cfg.Signaling.URL)
	return transport.NewWebRTCFactory(signaler, transport.ICEConfigFromFile(cfg.ICE), logger)
}

// confirmFingerprint shows the pairing fingerprint and, unless --yes
// was given, asks the operator to verify it against the peer's display
// before any library data moves. A non-terminal stdin cannot answer
// the prompt, so it refuses rather than silently confirming.
func confirmFingerprint(sess *session.Session, assumeYes bool) error {
	fmt.Printf("Peer connected. Fingerprint: %s\n", sess.Fingerprint())
	if !assumeYes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("stdin is not a terminal; verify the fingerprint out of band and rerun with --yes")
		}
		fmt.Print("Does the other side show the same fingerprint? [y/N] ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading confirmation: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
		default:
			return fmt.Errorf("pairing rejected")
		}
	}
	if err := sess.ConfirmPairing(); err != nil {
		return fmt.Errorf("confirming pairing: %w", err)
	}
	fmt.Println("Confirmed. Waiting for the other side to confirm...")
	return nil
}

func printProgress(p transfer.Progress) {
	fmt.Printf("  [%s] %d/%d %s\n", p.Phase, p.Done, p.Total, p.Item)
}

func peerName(sess *session.Session) string {
	if endpoint := sess.Endpoint(); endpoint != nil {
		return endpoint.Peer()
	}
	return ""
}

// saveReport persists the transfer outcome for `peersync report`. A
// report that cannot be written must not mask the transfer result, so
// failures only log.
func saveReport(stateDir string, report transfer.Report, logger *slog.Logger) {
	if _, err := transfer.WriteReport(stateDir, report); err != nil {
		logger.Warn("writing transfer report", "error", err)
	}
}
