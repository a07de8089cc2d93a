package agent

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/isabella232/sdc-amon/pkg/config"
	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
	"github.com/isabella232/sdc-amon/pkg/probetype"
)

const (
	manifestCacheFile = "agentprobes.json"
	eventPostTimeout  = 10 * time.Second
)

// Agent polls its relay socket for manifest changes and keeps the runner's
// probe set in sync. On startup it restores probes from the cached manifest
// so a relay outage does not leave the sandbox unmonitored.
type Agent struct {
	cfg      *config.AgentConfigV1
	client   *RelayClient
	runner   *Runner
	interval time.Duration
	clock    clockwork.Clock
	log      logrus.FieldLogger

	lastMD5 string
}

func New(cfg *config.AgentConfigV1, log logrus.FieldLogger) (*Agent, error) {
	if cfg.Socket == "" {
		return nil, errors.New("agent config: socket is required")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("agent config: dataDir is required")
	}
	var stater probetype.StateFunc
	if cfg.MachineStateCmd != "" {
		stater = ExecStater(cfg.MachineStateCmd)
	}
	a := &Agent{
		cfg:      cfg,
		client:   NewRelayClient(cfg.Socket),
		interval: time.Duration(cfg.PollInterval) * time.Second,
		clock:    clockwork.NewRealClock(),
		log:      log,
	}
	runner, err := NewRunner(probetype.Default(), a.postEvent, stater, log)
	if err != nil {
		return nil, err
	}
	a.runner = runner
	return a, nil
}

// Run blocks until ctx is cancelled. Every probe instance it starts is
// stopped before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("agent data dir: %w", err)
	}
	a.warmStart(ctx)
	a.syncOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			a.runner.StopAll()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-a.clock.After(a.interval):
			a.syncOnce(ctx)
		}
	}
}

// warmStart restores the probe set from the cached manifest, if any. The
// cached checksum counts as seen, so the first poll only refetches when the
// relay has something newer.
func (a *Agent) warmStart(ctx context.Context) {
	body, err := os.ReadFile(a.cachePath())
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		a.log.WithError(err).Warn("cannot read cached manifest")
		return
	}
	var manifest []model.ProbeView
	if err := json.Unmarshal(body, &manifest); err != nil {
		a.log.WithError(err).Warn("ignoring corrupt cached manifest")
		return
	}
	a.runner.Reconcile(ctx, manifest)
	sum := md5.Sum(body)
	a.lastMD5 = base64.StdEncoding.EncodeToString(sum[:])
	a.log.WithField("probes", len(manifest)).Info("restored probes from cached manifest")
}

// syncOnce checks the relay for a manifest change and reconciles on one.
// Poll failures keep the current probe set; the last known manifest stays in
// force until a fresh one arrives.
func (a *Agent) syncOnce(ctx context.Context) {
	sum, err := a.client.ManifestMD5(ctx)
	if err != nil {
		a.log.WithError(err).Warn("manifest check failed, keeping current probes")
		return
	}
	if sum == a.lastMD5 {
		return
	}
	body, gotMD5, err := a.client.FetchManifest(ctx)
	if err != nil {
		a.log.WithError(err).Warn("manifest fetch failed, keeping current probes")
		return
	}
	var manifest []model.ProbeView
	if err := json.Unmarshal(body, &manifest); err != nil {
		a.log.WithError(err).Warn("ignoring corrupt manifest")
		return
	}
	a.runner.Reconcile(ctx, manifest)
	if err := renameio.WriteFile(a.cachePath(), body, 0o644); err != nil {
		a.log.WithError(err).Warn("cannot cache manifest")
	}
	// Record the checksum of the body actually applied. If it raced past
	// the HEAD response the next poll notices and refetches.
	a.lastMD5 = gotMD5
	a.log.WithFields(logrus.Fields{
		"md5":    gotMD5,
		"probes": len(manifest),
	}).Info("manifest updated")
}

func (a *Agent) cachePath() string {
	return filepath.Join(a.cfg.DataDir, manifestCacheFile)
}

// postEvent is the runner's sink. The relay owns durable forwarding, so a
// local delivery failure is logged and the event dropped.
func (a *Agent) postEvent(ev *event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventPostTimeout)
	defer cancel()
	if err := a.client.PostEvent(ctx, ev); err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"event":   ev.UUID,
			"monitor": ev.Monitor,
		}).Warn("event delivery to relay failed")
		return
	}
	a.log.WithFields(logrus.Fields{
		"event":   ev.UUID,
		"monitor": ev.Monitor,
	}).Debug("event delivered to relay")
}

// ExecStater adapts a platform command into a machine state source. The
// command is run as "<cmd> <machine-uuid>"; exit 0 reports the sandbox up,
// exit 1 down, anything else is an error.
func ExecStater(cmd string) probetype.StateFunc {
	return func(ctx context.Context, machineUUID string) (bool, error) {
		err := exec.CommandContext(ctx, cmd, machineUUID).Run()
		if err == nil {
			return true, nil
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) && ee.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("machine state command: %w", err)
	}
}
