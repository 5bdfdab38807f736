package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nostr-zapwallet/internal/types"
)

// DefaultQueryTimeout bounds QuerySync when the context has no deadline.
const DefaultQueryTimeout = 8 * time.Second

// Pool runs short-lived fan-out operations over a set of relays. Each call
// dials its own connections and closes them before returning.
type Pool struct {
	dialer  Dialer
	timeout time.Duration
}

// NewPool creates a pool over dialer.
func NewPool(dialer Dialer) *Pool {
	return &Pool{dialer: dialer, timeout: DefaultQueryTimeout}
}

// WithTimeout returns a copy of p with a different query timeout.
func (p *Pool) WithTimeout(d time.Duration) *Pool {
	cp := *p
	cp.timeout = d
	return &cp
}

// QuerySync queries all relays concurrently and returns the de-duplicated
// events, newest first, honouring filter.Limit. Each relay is read until
// EOSE or the deadline. It fails only if no relay could be queried.
func (p *Pool) QuerySync(ctx context.Context, relays []string, filter types.Filter) ([]types.Event, error) {
	if len(relays) == 0 {
		return nil, types.NewError(types.KindTransportExhausted, "no relays configured")
	}
	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var (
		mu        sync.Mutex
		byID      = make(map[string]*types.Event)
		succeeded int
		wg        sync.WaitGroup
	)

	for _, url := range relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			events, err := p.queryRelay(ctx, url, filter)
			if err != nil {
				slog.Debug("relay: query failed", "relay", url, "error", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			succeeded++
			for i := range events {
				evt := events[i]
				if existing, ok := byID[evt.ID]; ok {
					existing.RelaysSeen = append(existing.RelaysSeen, evt.RelaysSeen...)
					continue
				}
				byID[evt.ID] = &evt
			}
		}(url)
	}
	wg.Wait()

	if succeeded == 0 {
		return nil, types.NewError(types.KindTransportExhausted, "no relay answered query")
	}

	out := make([]types.Event, 0, len(byID))
	for _, evt := range byID {
		out = append(out, *evt)
	}
	types.SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// queryRelay collects stored events from one relay. Events that arrived before
// a deadline are still returned.
func (p *Pool) queryRelay(ctx context.Context, url string, filter types.Filter) ([]types.Event, error) {
	conn, err := p.dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	sub, err := conn.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	var events []types.Event
	for {
		select {
		case evt := <-sub.Events:
			if filter.Matches(&evt) {
				events = append(events, evt)
			}
		case <-sub.EOSE:
			// drain anything queued ahead of EOSE
			for {
				select {
				case evt := <-sub.Events:
					if filter.Matches(&evt) {
						events = append(events, evt)
					}
				default:
					return events, nil
				}
			}
		case <-sub.Done:
			return events, nil
		case <-ctx.Done():
			if len(events) > 0 {
				return events, nil
			}
			return nil, ctx.Err()
		}
	}
}

// Publish sends evt to every relay concurrently and returns the relays that
// accepted it. It fails only if none did.
func (p *Pool) Publish(ctx context.Context, relays []string, evt *types.Event) ([]string, error) {
	if len(relays) == 0 {
		return nil, types.NewError(types.KindTransportExhausted, "no relays configured")
	}
	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		accepted []string
		lastErr  error
		wg       sync.WaitGroup
	)
	for _, url := range relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			err := p.publishOne(ctx, url, evt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				slog.Debug("relay: publish failed", "relay", url, "event_id", types.ShortID(evt.ID), "error", err)
				return
			}
			accepted = append(accepted, url)
		}(url)
	}
	wg.Wait()

	if len(accepted) == 0 {
		return nil, types.WrapError(types.KindTransportExhausted, lastErr, "event %s not accepted by any relay", types.ShortID(evt.ID))
	}
	return accepted, nil
}

func (p *Pool) publishOne(ctx context.Context, url string, evt *types.Event) error {
	conn, err := p.dialer.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Publish(ctx, evt)
}

// Stream subscribes on every relay and calls fn once per distinct event until
// ctx is cancelled. Calls to fn are serialized. Relays that fail to connect
// are skipped.
func (p *Pool) Stream(ctx context.Context, relays []string, filter types.Filter, fn func(types.Event)) error {
	var (
		seenMu sync.Mutex
		seen   = make(map[string]bool)
		wg     sync.WaitGroup
		live   int
		liveMu sync.Mutex
	)

	for _, url := range relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			conn, err := p.dialer.Dial(ctx, url)
			if err != nil {
				slog.Debug("relay: stream dial failed", "relay", url, "error", err)
				return
			}
			defer conn.Close()
			sub, err := conn.Subscribe(ctx, filter)
			if err != nil {
				return
			}
			defer sub.Close()
			liveMu.Lock()
			live++
			liveMu.Unlock()

			for {
				select {
				case evt := <-sub.Events:
					seenMu.Lock()
					if !seen[evt.ID] {
						seen[evt.ID] = true
						fn(evt)
					}
					seenMu.Unlock()
				case <-sub.Done:
					return
				case <-ctx.Done():
					return
				}
			}
		}(url)
	}
	wg.Wait()

	if live == 0 {
		return fmt.Errorf("stream: %w", types.NewError(types.KindTransportExhausted, "no relay accepted subscription"))
	}
	return ctx.Err()
}
