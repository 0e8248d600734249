// Package event defines the change events relayed from mutations to live
// viewers. The two Change variants form a closed union; consumers switch on
// the concrete type and treat anything else as a programming error.
package event

import (
	"time"

	"github.com/deckbeam/deckbeam/pkg/topic"
)

// Wire names of the stream frames.
const (
	NameScreenChanged          = "screenChanged"
	NameActiveContainerChanged = "activeContainerChanged"
	NamePing                   = "ping"
)

// Change is a notification handed to the hub after a committed mutation.
type Change interface {
	Name() string
	Topic() topic.Name
}

// ScreenChanged announces that a screen's visible content changed. Revision
// is the post-increment counter value for that screen.
type ScreenChanged struct {
	ContainerID string    `json:"containerId"`
	ScreenKey   string    `json:"screenKey"`
	Revision    int64     `json:"revision"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e ScreenChanged) Name() string { return NameScreenChanged }

func (e ScreenChanged) Topic() topic.Name {
	return topic.Name{ContainerID: e.ContainerID, ScreenKey: e.ScreenKey}
}

// ActiveContainerChanged announces a global state change; it carries no
// revision.
type ActiveContainerChanged struct {
	ContainerID      string    `json:"containerId"`
	DefaultScreenKey string    `json:"defaultScreenKey"`
	Timestamp        time.Time `json:"timestamp"`
}

func (e ActiveContainerChanged) Name() string { return NameActiveContainerChanged }

func (e ActiveContainerChanged) Topic() topic.Name { return topic.GlobalName() }

// Ping is the heartbeat payload. It is written directly by the stream
// endpoint and never passes through the hub.
type Ping struct {
	Timestamp time.Time `json:"timestamp"`
}
