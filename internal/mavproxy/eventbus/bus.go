// Package eventbus distributes router lifecycle events to interested listeners.
package eventbus

import (
	"context"
	"time"
)

// Router lifecycle event types.
const (
	RouterStarted = "started"
	RouterStopped = "stopped"
	RouterExited  = "exited"
)

// RouterEvent describes a change in the routing process.
type RouterEvent struct {
	Type      string    `json:"type"`
	Router    string    `json:"router"`
	PID       int       `json:"pid,omitempty"`
	Command   string    `json:"command,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus delivers router events to subscribers. Implementations stamp events
// that carry no timestamp.
type Bus interface {
	Publish(ctx context.Context, evt RouterEvent) error
	Subscribe(ch chan<- RouterEvent) (unsubscribe func(), err error)
}
