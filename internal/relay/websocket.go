package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nostr-zapwallet/internal/nostr"
	"nostr-zapwallet/internal/types"
)

const (
	defaultAckTimeout = 3 * time.Second
	writeTimeout      = 10 * time.Second
)

// ErrConnClosed is returned by operations on a closed connection.
var ErrConnClosed = errors.New("relay connection closed")

// WebsocketDialer dials relays over gorilla/websocket.
type WebsocketDialer struct {
	// AuthSigner answers NIP-42 AUTH challenges. Nil ignores challenges.
	AuthSigner nostr.Signer
	// AllowUnsafe skips the private-address check (tests only).
	AllowUnsafe bool
	// AckTimeout bounds how long Publish waits for an OK. Zero means 3s.
	AckTimeout time.Duration

	dialer *websocket.Dialer
}

// DialerOption configures a WebsocketDialer.
type DialerOption func(*WebsocketDialer)

// WithAuthSigner answers AUTH challenges with s.
func WithAuthSigner(s nostr.Signer) DialerOption {
	return func(d *WebsocketDialer) { d.AuthSigner = s }
}

// WithUnsafeURLs allows loopback and private relay addresses.
func WithUnsafeURLs() DialerOption {
	return func(d *WebsocketDialer) { d.AllowUnsafe = true }
}

// WithAckTimeout sets the publish acknowledgement window.
func WithAckTimeout(t time.Duration) DialerOption {
	return func(d *WebsocketDialer) { d.AckTimeout = t }
}

// NewWebsocketDialer creates a dialer with gorilla's default handshake settings.
func NewWebsocketDialer(opts ...DialerOption) *WebsocketDialer {
	d := &WebsocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial opens a connection and starts its read loop.
func (d *WebsocketDialer) Dial(ctx context.Context, relayURL string) (Conn, error) {
	if !d.AllowUnsafe && !IsRelayURLSafe(relayURL) {
		return nil, fmt.Errorf("relay URL blocked: unsafe destination %s", relayURL)
	}
	dialer := d.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", relayURL, err)
	}
	slog.Debug("relay: connected", "relay", relayURL)

	ackTimeout := d.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}
	rc := &wsConn{
		ws:            ws,
		relayURL:      relayURL,
		authSigner:    d.AuthSigner,
		ackTimeout:    ackTimeout,
		subscriptions: make(map[string]*Subscription),
		pendingOK:     make(map[string]chan okResult),
		closed:        make(chan struct{}),
	}
	go rc.readLoop()
	return rc, nil
}

type okResult struct {
	accepted bool
	reason   string
}

// wsConn manages a single websocket connection with multiple subscriptions
type wsConn struct {
	ws         *websocket.Conn
	relayURL   string
	authSigner nostr.Signer
	ackTimeout time.Duration

	mu            sync.Mutex
	writeMu       sync.Mutex
	subscriptions map[string]*Subscription
	pendingOK     map[string]chan okResult
	closed        chan struct{}
	closeOnce     sync.Once
}

func (rc *wsConn) URL() string { return rc.relayURL }

func (rc *wsConn) writeJSON(v interface{}) error {
	select {
	case <-rc.closed:
		return ErrConnClosed
	default:
	}
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	rc.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return rc.ws.WriteJSON(v)
}

// Subscribe sends a REQ and registers the subscription.
func (rc *wsConn) Subscribe(ctx context.Context, filter types.Filter) (*Subscription, error) {
	subID := "sub-" + uuid.NewString()[:8]
	sub := NewSubscription(subID, filter, func() {
		rc.mu.Lock()
		_, live := rc.subscriptions[subID]
		delete(rc.subscriptions, subID)
		rc.mu.Unlock()
		if live {
			if err := rc.writeJSON([]interface{}{"CLOSE", subID}); err != nil && !errors.Is(err, ErrConnClosed) {
				slog.Debug("relay: failed to send CLOSE", "relay", rc.relayURL, "sub", subID, "error", err)
			}
		}
	})

	rc.mu.Lock()
	rc.subscriptions[subID] = sub
	rc.mu.Unlock()

	if err := rc.writeJSON([]interface{}{"REQ", subID, filter}); err != nil {
		rc.mu.Lock()
		delete(rc.subscriptions, subID)
		rc.mu.Unlock()
		sub.Close()
		return nil, fmt.Errorf("send REQ to %s: %w", rc.relayURL, err)
	}
	return sub, nil
}

// Publish sends ["EVENT", evt] and waits briefly for the relay's OK.
// No OK within the window counts as accepted; some relays never answer.
func (rc *wsConn) Publish(ctx context.Context, evt *types.Event) error {
	ack := make(chan okResult, 1)
	rc.mu.Lock()
	rc.pendingOK[evt.ID] = ack
	rc.mu.Unlock()
	defer func() {
		rc.mu.Lock()
		delete(rc.pendingOK, evt.ID)
		rc.mu.Unlock()
	}()

	if err := rc.writeJSON([]interface{}{"EVENT", evt}); err != nil {
		return fmt.Errorf("publish to %s: %w", rc.relayURL, err)
	}

	timer := time.NewTimer(rc.ackTimeout)
	defer timer.Stop()
	select {
	case res := <-ack:
		if !res.accepted {
			return fmt.Errorf("relay %s rejected event: %s", rc.relayURL, res.reason)
		}
		return nil
	case <-timer.C:
		slog.Debug("relay: no OK for published event", "relay", rc.relayURL, "event_id", types.ShortID(evt.ID))
		return nil
	case <-rc.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the socket and every subscription on it.
func (rc *wsConn) Close() error {
	var err error
	rc.closeOnce.Do(func() {
		close(rc.closed)

		rc.writeMu.Lock()
		rc.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		rc.writeMu.Unlock()
		err = rc.ws.Close()

		rc.mu.Lock()
		subs := rc.subscriptions
		rc.subscriptions = make(map[string]*Subscription)
		rc.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}
		slog.Debug("relay: closed", "relay", rc.relayURL)
	})
	return err
}

// readLoop continuously reads from the connection and routes messages
func (rc *wsConn) readLoop() {
	defer rc.Close()

	for {
		var msg []interface{}
		if err := rc.ws.ReadJSON(&msg); err != nil {
			select {
			case <-rc.closed:
			default:
				slog.Debug("relay: read error", "relay", rc.relayURL, "error", err)
			}
			return
		}
		if len(msg) < 2 {
			continue
		}
		msgType, ok := msg[0].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			subID, _ := msg[1].(string)
			evt, ok := nostr.ParseEventFromInterface(msg[2])
			if !ok {
				continue
			}
			evt.RelaysSeen = []string{rc.relayURL}
			if sub := rc.subscription(subID); sub != nil {
				sub.Deliver(evt)
			}

		case "EOSE":
			subID, _ := msg[1].(string)
			if sub := rc.subscription(subID); sub != nil {
				sub.MarkEOSE()
			}

		case "CLOSED":
			// Subscription was closed by relay
			subID, _ := msg[1].(string)
			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			delete(rc.subscriptions, subID)
			rc.mu.Unlock()
			if sub != nil {
				sub.Close()
			}

		case "OK":
			if len(msg) < 3 {
				continue
			}
			eventID, _ := msg[1].(string)
			accepted, _ := msg[2].(bool)
			reason := ""
			if len(msg) >= 4 {
				reason, _ = msg[3].(string)
			}
			slog.Debug("relay: received OK", "relay", rc.relayURL, "event_id", types.ShortID(eventID), "success", accepted, "reason", reason)
			rc.mu.Lock()
			ch := rc.pendingOK[eventID]
			rc.mu.Unlock()
			if ch != nil {
				select {
				case ch <- okResult{accepted: accepted, reason: reason}:
				default:
				}
			}

		case "NOTICE":
			notice, _ := msg[1].(string)
			slog.Debug("relay: NOTICE", "relay", rc.relayURL, "notice", notice)

		case "AUTH":
			challenge, _ := msg[1].(string)
			rc.handleAuth(challenge)
		}
	}
}

func (rc *wsConn) subscription(id string) *Subscription {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.subscriptions[id]
}

// handleAuth responds to a NIP-42 AUTH challenge
func (rc *wsConn) handleAuth(challenge string) {
	if rc.authSigner == nil || challenge == "" {
		return
	}
	evt := &types.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      types.KindClientAuth,
		Tags: [][]string{
			{"relay", rc.relayURL},
			{"challenge", challenge},
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.authSigner.SignEvent(ctx, evt); err != nil {
		slog.Warn("relay: failed to sign AUTH event", "relay", rc.relayURL, "error", err)
		return
	}
	if err := rc.writeJSON([]interface{}{"AUTH", evt}); err != nil {
		slog.Debug("relay: failed to send AUTH response", "relay", rc.relayURL, "error", err)
		return
	}
	slog.Debug("relay: sent AUTH response", "relay", rc.relayURL, "event_id", types.ShortID(evt.ID))
}
