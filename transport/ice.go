// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/atelier-foundation/peersync/lib/config"
)

// ICEConfig holds ICE server configuration for WebRTC PeerConnections.
type ICEConfig struct {
	// Servers is the list of ICE servers (STUN + TURN) to use during
	// candidate gathering. Order matters: pion tries them in sequence.
	Servers []webrtc.ICEServer
}

// ICEConfigFromFile converts the config-file ICE section into an
// ICEConfig suitable for pion/webrtc. An empty section yields a config
// with only host candidates (no STUN, no TURN) — sufficient for
// same-machine and same-LAN transfers.
func ICEConfigFromFile(cfg config.ICEConfig) ICEConfig {
	if len(cfg.Servers) == 0 {
		return ICEConfig{}
	}
	servers := make([]webrtc.ICEServer, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		entry := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" {
			entry.Username = server.Username
			entry.Credential = server.Credential
		}
		servers = append(servers, entry)
	}
	return ICEConfig{Servers: servers}
}
