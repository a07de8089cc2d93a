package probetype

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/jonboulle/clockwork"
)

const machineUpSchema = `{
	"type": "object",
	"additionalProperties": false
}`

// machineUp watches whether a machine's sandbox is running. It takes no
// config and runs in the compute node's privileged sandbox, so the agent
// there must supply a MachineState source.
type machineUp struct {
	schema *openapi3.Schema
}

func NewMachineUp() Type {
	return &machineUp{schema: mustSchema(machineUpSchema)}
}

func (t *machineUp) Name() string      { return "machineup" }
func (t *machineUp) RunInGlobal() bool { return true }

func (t *machineUp) ValidateConfig(config map[string]interface{}) error {
	return validateAgainst(t.schema, config)
}

func (t *machineUp) NewInstance(opts InstanceOptions) (Instance, error) {
	if err := t.ValidateConfig(opts.Config); err != nil {
		return nil, err
	}
	if opts.Machine == "" {
		return nil, errors.New("machineup probe requires a machine")
	}
	if opts.MachineState == nil {
		return nil, errors.New("machineup probe requires a machine state source")
	}
	return &machineUpInstance{
		opts:  opts,
		poll:  30 * time.Second,
		clock: clockwork.NewRealClock(),
	}, nil
}

type machineUpInstance struct {
	opts  InstanceOptions
	poll  time.Duration
	clock clockwork.Clock

	known bool
	up    bool
}

// Run polls the machine state. The first successful check only establishes a
// baseline; after that each transition emits one event, with the recovery
// side marked clear.
func (i *machineUpInstance) Run(ctx context.Context) error {
	ticker := i.clock.NewTicker(i.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			i.check(ctx)
		}
	}
}

func (i *machineUpInstance) check(ctx context.Context) {
	up, err := i.opts.MachineState(ctx, i.opts.Machine)
	if err != nil {
		if i.opts.Log != nil {
			i.opts.Log.WithError(err).WithField("machine", i.opts.Machine).Warn("machineup state check failed")
		}
		return
	}
	if !i.known {
		i.known = true
		i.up = up
		return
	}
	if up == i.up {
		return
	}
	i.up = up
	msg := fmt.Sprintf("Machine %s went down.", i.opts.Machine)
	if up {
		msg = fmt.Sprintf("Machine %s came back up.", i.opts.Machine)
	}
	i.opts.Emit(EventData{
		Message: msg,
		Clear:   up,
		Details: map[string]interface{}{"machine": i.opts.Machine, "up": up},
	})
}
