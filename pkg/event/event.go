// Package event defines the wire form of monitoring events as they travel
// agent -> relay -> master. The format is versioned; v=1 is the only version.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the current wire format version.
const Version = 1

type Type string

const (
	// TypeProbe is an event emitted by a running probe.
	TypeProbe Type = "probe"

	// TypeFake is a synthetic event injected through the fault-injection
	// endpoint to exercise the notification path.
	TypeFake Type = "fake"
)

// ProbeRef identifies the probe an event came from.
type ProbeRef struct {
	User    string `json:"user"`
	Monitor string `json:"monitor"`
	Name    string `json:"name"`
	Type    string `json:"type"`
}

// Event is one monitoring event. Time is milliseconds since the epoch.
type Event struct {
	V       int                    `json:"v"`
	UUID    string                 `json:"uuid"`
	Type    Type                   `json:"type"`
	User    string                 `json:"user"`
	Monitor string                 `json:"monitor"`
	Time    int64                  `json:"time"`
	Clear   bool                   `json:"clear"`
	Data    map[string]interface{} `json:"data"`
	Probe   *ProbeRef              `json:"probe,omitempty"`
}

// New builds an event stamped with a fresh UUID and the current time.
func New(typ Type, user, monitor string, data map[string]interface{}) *Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Event{
		V:       Version,
		UUID:    uuid.New().String(),
		Type:    typ,
		User:    user,
		Monitor: monitor,
		Time:    time.Now().UnixMilli(),
		Data:    data,
	}
}

// ErrBadVersion reports an event with an unsupported wire version. The API
// maps it to a plain 400 rather than the usual error kinds.
type ErrBadVersion struct {
	V int
}

func (e *ErrBadVersion) Error() string {
	return fmt.Sprintf("unsupported event version %d (want %d)", e.V, Version)
}

// Validate checks the event's envelope. Data contents are opaque and not
// validated beyond presence of the map itself.
func (e *Event) Validate() error {
	if e.V != Version {
		return &ErrBadVersion{V: e.V}
	}
	if _, err := uuid.Parse(e.UUID); err != nil {
		return fmt.Errorf("uuid: %w", err)
	}
	switch e.Type {
	case TypeProbe, TypeFake:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if _, err := uuid.Parse(e.User); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	if e.Monitor == "" {
		return fmt.Errorf("monitor is required")
	}
	if e.Time <= 0 {
		return fmt.Errorf("time is required")
	}
	if e.Type == TypeProbe && e.Probe == nil {
		return fmt.Errorf("probe events require a probe reference")
	}
	return nil
}

// Message returns the human-readable message carried in the data payload,
// if any.
func (e *Event) Message() string {
	s, _ := e.Data["message"].(string)
	return s
}

// Timestamp converts the millisecond epoch time to a time.Time.
func (e *Event) Timestamp() time.Time {
	return time.UnixMilli(e.Time)
}
