// Package relaytest provides an in-memory relay.Dialer for tests.
package relaytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"nostr-zapwallet/internal/relay"
	"nostr-zapwallet/internal/types"
)

// ErrRelayDown is returned when dialing a relay marked down.
var ErrRelayDown = errors.New("relaytest: relay down")

// MemoryDialer serves every URL from one shared event store. Published
// events become visible to later queries on any URL.
type MemoryDialer struct {
	mu     sync.Mutex
	events []types.Event
	down   map[string]bool

	live      atomic.Int32
	published atomic.Int32
	queries   atomic.Int32
}

// NewMemoryDialer creates a dialer preloaded with events.
func NewMemoryDialer(events ...types.Event) *MemoryDialer {
	return &MemoryDialer{events: events, down: make(map[string]bool)}
}

// Add stores events.
func (d *MemoryDialer) Add(events ...types.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

// Events returns a copy of the store.
func (d *MemoryDialer) Events() []types.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.Event(nil), d.events...)
}

// SetDown makes dials to url fail.
func (d *MemoryDialer) SetDown(url string, down bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down[url] = down
}

// Live is the number of open connections.
func (d *MemoryDialer) Live() int { return int(d.live.Load()) }

// Published counts accepted publishes.
func (d *MemoryDialer) Published() int { return int(d.published.Load()) }

// Queries counts subscriptions opened.
func (d *MemoryDialer) Queries() int { return int(d.queries.Load()) }

func (d *MemoryDialer) Dial(ctx context.Context, url string) (relay.Conn, error) {
	d.mu.Lock()
	down := d.down[url]
	d.mu.Unlock()
	if down {
		return nil, fmt.Errorf("dial %s: %w", url, ErrRelayDown)
	}
	d.live.Add(1)
	return &memConn{d: d, url: url}, nil
}

type memConn struct {
	d    *MemoryDialer
	url  string
	mu   sync.Mutex
	subs []*relay.Subscription
	once sync.Once
}

func (c *memConn) URL() string { return c.url }

func (c *memConn) Subscribe(ctx context.Context, filter types.Filter) (*relay.Subscription, error) {
	c.d.queries.Add(1)
	sub := relay.NewSubscription(fmt.Sprintf("mem-%d", c.d.Queries()), filter, nil)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	var matched []types.Event
	for _, evt := range c.d.Events() {
		if filter.Matches(&evt) {
			evt.RelaysSeen = []string{c.url}
			matched = append(matched, evt)
		}
	}
	go func() {
		for _, evt := range matched {
			if !sub.Deliver(evt) {
				return
			}
		}
		sub.MarkEOSE()
	}()
	return sub, nil
}

func (c *memConn) Publish(ctx context.Context, evt *types.Event) error {
	c.d.published.Add(1)
	c.d.Add(*evt)
	return nil
}

func (c *memConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		subs := c.subs
		c.mu.Unlock()
		for _, s := range subs {
			s.Close()
		}
		c.d.live.Add(-1)
	})
	return nil
}
