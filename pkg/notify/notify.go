// Package notify delivers session lifecycle events to whoever presents them
// to the operator: log lines on the dashboard, terminal notices in the CLI.
package notify

import (
	"context"
	"sync"
)

// Event types emitted by the session guard.
const (
	TypeAuthenticated = "session.authenticated"
	TypeExpired       = "session.expired"
	TypeLoggedOut     = "session.logged_out"
	TypeRejected      = "session.rejected"
)

// Event represents a notification event.
type Event struct {
	Type      string
	Message   string
	Subject   string
	Timestamp int64
}

// Notifier sends alerts when notable events occur.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event, if any.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Multi fans an event out to several notifiers. Every notifier is called;
// the first error is returned.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, event Event) error {
		var first error
		for _, n := range notifiers {
			if n == nil {
				continue
			}
			if err := n.Notify(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
