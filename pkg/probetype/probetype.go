// Package probetype defines the probe-type plugin contract and the registry
// the master and agents share. The master uses a Type to validate probe
// configs and to derive the global flag; agents use it to run instances.
package probetype

import (
	"context"

	"github.com/sirupsen/logrus"
)

// EventData is what a running probe emits when it fires or clears. The agent
// wraps it into a full wire event together with the probe's identity.
type EventData struct {
	Message string
	Clear   bool
	Details map[string]interface{}
}

// StateFunc reports whether a machine's sandbox is currently running. The
// global-zone agent wires it to the platform; tests wire fakes.
type StateFunc func(ctx context.Context, machineUUID string) (bool, error)

// InstanceOptions carries everything a probe instance may need. Emit must be
// safe to call from the instance's goroutine until Run returns.
type InstanceOptions struct {
	Owner   string
	Monitor string
	Name    string
	Machine string
	Server  string
	Config  map[string]interface{}

	Emit         func(EventData)
	Log          logrus.FieldLogger
	MachineState StateFunc
}

// Type is one probe-type plugin.
type Type interface {
	Name() string

	// RunInGlobal reports whether instances of this type run in the
	// compute node's privileged sandbox instead of the tenant sandbox.
	RunInGlobal() bool

	// ValidateConfig rejects malformed probe configs. It is called by the
	// master on every probe write, before anything is persisted.
	ValidateConfig(config map[string]interface{}) error

	// NewInstance builds a runnable instance; it must not start work.
	NewInstance(opts InstanceOptions) (Instance, error)
}

// Instance is one running probe. Run blocks until the context is cancelled
// or a fatal error occurs; a fatal error stops the instance until the next
// manifest change.
type Instance interface {
	Run(ctx context.Context) error
}
