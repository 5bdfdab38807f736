// Package relay is the Nostr relay transport: a Dialer producing connections
// that can subscribe and publish, and a Pool for one-shot fan-out queries.
//
// Every Conn is owned by exactly one caller, which must Close it. Nothing in
// this package keeps connections alive between calls.
package relay

import (
	"context"
	"sync"

	"nostr-zapwallet/internal/types"
)

// Dialer opens relay connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is a single relay connection.
type Conn interface {
	URL() string
	Subscribe(ctx context.Context, filter types.Filter) (*Subscription, error)
	// Publish sends an event and waits for the relay's OK, if any arrives
	// within the acknowledgement window.
	Publish(ctx context.Context, evt *types.Event) error
	Close() error
}

// Subscription represents an active subscription on a relay connection.
// Events is closed never; consumers select on Done instead.
type Subscription struct {
	ID     string
	Filter types.Filter
	Events chan types.Event
	EOSE   chan struct{}
	Done   chan struct{}

	eoseOnce  sync.Once
	closeOnce sync.Once
	onClose   func()
}

// NewSubscription creates a subscription. onClose runs once on Close and may be nil.
func NewSubscription(id string, filter types.Filter, onClose func()) *Subscription {
	return &Subscription{
		ID:      id,
		Filter:  filter,
		Events:  make(chan types.Event, 32),
		EOSE:    make(chan struct{}),
		Done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Deliver hands evt to the consumer, blocking until it is accepted or the
// subscription is closed. Returns false if closed.
func (s *Subscription) Deliver(evt types.Event) bool {
	select {
	case <-s.Done:
		return false
	default:
	}
	select {
	case s.Events <- evt:
		return true
	case <-s.Done:
		return false
	}
}

// MarkEOSE signals end of stored events. Safe to call more than once.
func (s *Subscription) MarkEOSE() {
	s.eoseOnce.Do(func() { close(s.EOSE) })
}

// Close ends the subscription exactly once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.Done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}
