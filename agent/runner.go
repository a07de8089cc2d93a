package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
	"github.com/isabella232/sdc-amon/pkg/probetype"
)

// Runner owns the set of probe instances the agent runs. Reconcile moves
// that set toward a manifest snapshot; events emitted by instances are
// wrapped into wire envelopes and handed to the sink.
type Runner struct {
	types        *probetype.Registry
	probes       *probeRegistry
	sink         func(*event.Event)
	machineState probetype.StateFunc
	log          logrus.FieldLogger
}

// NewRunner builds a runner. machineState may be nil on agents that never
// see global probes; probe types that need it then fail instantiation and
// land in the stopped state.
func NewRunner(types *probetype.Registry, sink func(*event.Event), machineState probetype.StateFunc, log logrus.FieldLogger) (*Runner, error) {
	probes, err := newProbeRegistry()
	if err != nil {
		return nil, err
	}
	return &Runner{
		types:        types,
		probes:       probes,
		sink:         sink,
		machineState: machineState,
		log:          log,
	}, nil
}

// Reconcile moves the running set to match the manifest: probes no longer
// listed are stopped, new ones started, changed ones restarted. An entry
// whose spec is unchanged is left alone even when its instance has stopped;
// a fatal probe error is not retried until the manifest changes. ctx bounds
// the lifetime of every instance started by this call.
func (r *Runner) Reconcile(ctx context.Context, manifest []model.ProbeView) {
	desired := make(map[string]model.ProbeView, len(manifest))
	specs := make(map[string]string, len(manifest))
	for _, view := range manifest {
		key := view.User + "/" + view.Monitor + "/" + view.Name
		raw, err := json.Marshal(view)
		if err != nil {
			r.log.WithError(err).WithField("probe", key).Warn("skipping unencodable manifest entry")
			continue
		}
		desired[key] = view
		specs[key] = string(raw)
	}

	for _, cur := range r.probes.All() {
		if _, ok := desired[cur.key()]; !ok {
			r.stopProbe(cur)
		}
	}

	for key, view := range desired {
		cur, ok := r.probes.Get(view.User, view.Monitor, view.Name)
		if ok && cur.SpecJSON == specs[key] {
			continue
		}
		if ok {
			r.stopProbe(cur)
		}
		r.startProbe(ctx, view, specs[key])
	}
}

// StopAll stops every instance and waits for each to exit.
func (r *Runner) StopAll() {
	for _, cur := range r.probes.All() {
		r.stopProbe(cur)
	}
}

// States reports the current state per probe key.
func (r *Runner) States() map[string]ProbeState {
	states := map[string]ProbeState{}
	for _, cur := range r.probes.All() {
		states[cur.key()] = cur.State
	}
	return states
}

func (r *Runner) startProbe(ctx context.Context, view model.ProbeView, specJSON string) {
	rec := &runningProbe{
		User:     view.User,
		Monitor:  view.Monitor,
		Name:     view.Name,
		Type:     view.Type,
		Machine:  view.Machine,
		Server:   view.Server,
		SpecJSON: specJSON,
		State:    StatePending,
	}
	log := r.log.WithFields(logrus.Fields{
		"probe": rec.key(),
		"type":  view.Type,
	})

	t, ok := r.types.Lookup(view.Type)
	if !ok {
		rec.State = StateStopped
		if err := r.probes.Insert(rec); err != nil {
			log.WithError(err).Error("cannot register probe")
			return
		}
		log.Warn("unknown probe type, probe will not run")
		return
	}

	inst, err := t.NewInstance(probetype.InstanceOptions{
		Owner:        view.User,
		Monitor:      view.Monitor,
		Name:         view.Name,
		Machine:      view.Machine,
		Server:       view.Server,
		Config:       view.Config,
		Emit:         func(d probetype.EventData) { r.emit(view, d) },
		Log:          log,
		MachineState: r.machineState,
	})
	if err != nil {
		rec.State = StateStopped
		if insErr := r.probes.Insert(rec); insErr != nil {
			log.WithError(insErr).Error("cannot register probe")
			return
		}
		log.WithError(err).Warn("probe instantiation failed, probe will not run")
		return
	}

	ictx, cancel := context.WithCancel(ctx)
	rec.stop = cancel
	rec.done = make(chan struct{})
	if err := r.probes.Insert(rec); err != nil {
		cancel()
		log.WithError(err).Error("cannot register probe")
		return
	}

	go func() {
		defer close(rec.done)
		if err := r.probes.SetState(rec.User, rec.Monitor, rec.Name, StateRunning); err != nil {
			log.WithError(err).Error("cannot mark probe running")
		}
		err := inst.Run(ictx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("probe stopped")
		}
		if err := r.probes.SetState(rec.User, rec.Monitor, rec.Name, StateStopped); err != nil {
			log.WithError(err).Debug("probe already deregistered")
		}
	}()
	log.Info("probe started")
}

// stopProbe cancels the instance, waits for its goroutine to exit, then
// removes the record. Waiting guarantees an old instance and its
// replacement never run concurrently.
func (r *Runner) stopProbe(cur *runningProbe) {
	if cur.stop != nil {
		cur.stop()
		<-cur.done
	}
	if err := r.probes.Delete(cur.User, cur.Monitor, cur.Name); err != nil {
		r.log.WithError(err).WithField("probe", cur.key()).Error("cannot deregister probe")
	}
	r.log.WithField("probe", cur.key()).Info("probe stopped")
}

// emit wraps probe output into a wire event and hands it to the sink.
func (r *Runner) emit(view model.ProbeView, d probetype.EventData) {
	data := map[string]interface{}{"message": d.Message}
	if len(d.Details) > 0 {
		data["details"] = d.Details
	}
	ev := event.New(event.TypeProbe, view.User, view.Monitor, data)
	ev.Clear = d.Clear
	ev.Probe = &event.ProbeRef{
		User:    view.User,
		Monitor: view.Monitor,
		Name:    view.Name,
		Type:    view.Type,
	}
	r.sink(ev)
}
