package agent

import (
	"fmt"

	hcmemdb "github.com/hashicorp/go-memdb"
)

// ProbeState is the lifecycle phase of one managed probe instance.
type ProbeState string

const (
	// StatePending means the instance is created but its goroutine has not
	// reached Run yet.
	StatePending ProbeState = "pending"
	// StateRunning means the instance's Run is executing.
	StateRunning ProbeState = "running"
	// StateStopped means the instance exited, failed to instantiate, or has
	// an unknown type. Stopped probes are left alone until their manifest
	// entry changes.
	StateStopped ProbeState = "stopped"
)

const probeTable = "probe"

// runningProbe is the registry record for one probe from the manifest.
// SpecJSON is the canonical encoding of the manifest entry; reconciliation
// compares it to decide whether a probe changed. The stop/done pair is nil
// for probes that never produced an instance.
type runningProbe struct {
	User    string
	Monitor string
	Name    string
	Type    string
	Machine string
	Server  string

	SpecJSON string
	State    ProbeState

	stop func()
	done chan struct{}
}

func (p *runningProbe) key() string {
	return p.User + "/" + p.Monitor + "/" + p.Name
}

func probeSchema() *hcmemdb.DBSchema {
	return &hcmemdb.DBSchema{
		Tables: map[string]*hcmemdb.TableSchema{
			probeTable: {
				Name: probeTable,
				Indexes: map[string]*hcmemdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &hcmemdb.CompoundIndex{
							Indexes: []hcmemdb.Indexer{
								&hcmemdb.StringFieldIndex{Field: "User"},
								&hcmemdb.StringFieldIndex{Field: "Monitor"},
								&hcmemdb.StringFieldIndex{Field: "Name"},
							},
						},
					},
					"monitor": {
						Name:   "monitor",
						Unique: false,
						Indexer: &hcmemdb.CompoundIndex{
							Indexes: []hcmemdb.Indexer{
								&hcmemdb.StringFieldIndex{Field: "User"},
								&hcmemdb.StringFieldIndex{Field: "Monitor"},
							},
						},
					},
				},
			},
		},
	}
}

// probeRegistry tracks the probes the runner manages. Records are treated as
// immutable once inserted; state changes go through copy-and-reinsert.
type probeRegistry struct {
	db *hcmemdb.MemDB
}

func newProbeRegistry() (*probeRegistry, error) {
	db, err := hcmemdb.NewMemDB(probeSchema())
	if err != nil {
		return nil, fmt.Errorf("probe registry schema: %w", err)
	}
	return &probeRegistry{db: db}, nil
}

func (r *probeRegistry) Get(user, monitor, name string) (*runningProbe, bool) {
	txn := r.db.Txn(false)
	raw, err := txn.First(probeTable, "id", user, monitor, name)
	if err != nil || raw == nil {
		return nil, false
	}
	return raw.(*runningProbe), true
}

// All returns every registry record in index order.
func (r *probeRegistry) All() []*runningProbe {
	txn := r.db.Txn(false)
	iter, err := txn.Get(probeTable, "id")
	if err != nil {
		return nil
	}
	var probes []*runningProbe
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		probes = append(probes, raw.(*runningProbe))
	}
	return probes
}

// ByMonitor returns the records for one monitor, in name order.
func (r *probeRegistry) ByMonitor(user, monitor string) []*runningProbe {
	txn := r.db.Txn(false)
	iter, err := txn.Get(probeTable, "monitor", user, monitor)
	if err != nil {
		return nil
	}
	var probes []*runningProbe
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		probes = append(probes, raw.(*runningProbe))
	}
	return probes
}

func (r *probeRegistry) Insert(p *runningProbe) error {
	txn := r.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(probeTable, p); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (r *probeRegistry) Delete(user, monitor, name string) error {
	txn := r.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(probeTable, "id", user, monitor, name)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	if err := txn.Delete(probeTable, raw); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// SetState replaces the record with a copy carrying the new state. The
// stop/done handles are shared between copies, so callers holding an old
// pointer can still wait on the same instance.
func (r *probeRegistry) SetState(user, monitor, name string, state ProbeState) error {
	txn := r.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(probeTable, "id", user, monitor, name)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("probe %s/%s/%s is not registered", user, monitor, name)
	}
	next := *raw.(*runningProbe)
	next.State = state
	if err := txn.Insert(probeTable, &next); err != nil {
		return err
	}
	txn.Commit()
	return nil
}
