// Package relay implements the per-node relay tier: it mirrors probe
// manifests from the master onto local disk, serves them to agents over
// per-target unix sockets, and forwards agent events upstream, spooling
// them when the master is unreachable.
package relay

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/isabella232/sdc-amon/pkg/config"
	"github.com/isabella232/sdc-amon/pkg/model"
)

type TargetType string

const (
	// TargetMachine is a tenant sandbox on this node.
	TargetMachine TargetType = "machine"

	// TargetServer is the node itself; its agent runs privileged and
	// carries the global probes of the machines hosted here.
	TargetServer TargetType = "server"
)

// Target is one agent the relay serves: a manifest mirror, a unix socket
// and an upstream manifest query.
type Target struct {
	Type TargetType
	UUID string
}

func (t Target) String() string {
	return string(t.Type) + "-" + t.UUID
}

// ManifestPath is the on-disk mirror of the target's probe manifest.
func (t Target) ManifestPath(dataDir string) string {
	return filepath.Join(dataDir, t.String()+".json")
}

// ChecksumPath holds the base64 md5 of the manifest body.
func (t Target) ChecksumPath(dataDir string) string {
	return t.ManifestPath(dataDir) + ".content-md5"
}

// SocketPath is where this target's agent connects.
func (t Target) SocketPath(socketDir string) string {
	return filepath.Join(socketDir, t.String()+".sock")
}

// Query is the master /agentprobes query selecting this target's manifest.
func (t Target) Query() url.Values {
	return url.Values{string(t.Type): []string{t.UUID}}
}

// TargetsFromConfig builds the target set: every configured machine plus
// the node's own server target.
func TargetsFromConfig(cfg *config.RelayConfigV1) ([]Target, error) {
	seen := map[string]bool{}
	var targets []Target

	add := func(typ TargetType, uuid string) error {
		if !model.ValidUUID(uuid) {
			return fmt.Errorf("%s target %q is not a UUID", typ, uuid)
		}
		if seen[uuid] {
			return fmt.Errorf("duplicate target %q", uuid)
		}
		seen[uuid] = true
		targets = append(targets, Target{Type: typ, UUID: uuid})
		return nil
	}

	if cfg.Server != "" {
		if err := add(TargetServer, cfg.Server); err != nil {
			return nil, err
		}
	}
	for _, m := range cfg.Machines {
		if err := add(TargetMachine, m); err != nil {
			return nil, err
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets configured: need a server uuid or at least one machine")
	}
	return targets, nil
}
