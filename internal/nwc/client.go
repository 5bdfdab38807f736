package nwc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/nostr"
	"nostr-zapwallet/internal/relay"
	"nostr-zapwallet/internal/types"
)

// DefaultTimeout bounds one request across all relays.
const DefaultTimeout = 15 * time.Second

// State of a single request.
type State int

const (
	StateIdle State = iota
	StateRequestBuilt
	StateRelaysConnecting
	StateAwaitingResponse
	StateResolvedSuccess
	StateResolvedFailure
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestBuilt:
		return "request_built"
	case StateRelaysConnecting:
		return "relays_connecting"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateResolvedSuccess:
		return "resolved_success"
	case StateResolvedFailure:
		return "resolved_failure"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateResolvedSuccess || s == StateResolvedFailure || s == StateExhausted
}

// Request is a JSON-RPC request to the wallet
type Request struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// Response is a JSON-RPC response from the wallet
type Response struct {
	ResultType string          `json:"result_type"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *RemoteError    `json:"error,omitempty"`
}

// RemoteError represents an error from the wallet
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errResolved is returned by the winning relay goroutine to cancel the others.
var errResolved = errors.New("nwc: response received")

// Client sends NIP-47 requests for one wallet connection.
type Client struct {
	config  *Config
	dialer  relay.Dialer
	timeout time.Duration
	onState func(requestID string, s State)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request. Zero or negative means DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithStateHook observes request state transitions. requestID is empty
// until the request event is built.
func WithStateHook(fn func(requestID string, s State)) Option {
	return func(c *Client) { c.onState = fn }
}

// NewClient creates a client for config using dialer for relay connections.
func NewClient(config *Config, dialer relay.Dialer, opts ...Option) *Client {
	c := &Client{config: config, dialer: dialer, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the connection parameters.
func (c *Client) Config() *Config { return c.config }

func (c *Client) setState(id string, s State) {
	if c.onState != nil {
		c.onState(id, s)
	}
}

// Do sends method with params to the wallet service and decodes the result
// into result (which may be nil). The request is published on every relay
// at once; the first relay to deliver a correlated response that decrypts
// decides the outcome and the rest are cancelled. All connections are
// closed before Do returns.
func (c *Client) Do(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.setState("", StateIdle)

	evt, err := c.buildRequest(method, params)
	if err != nil {
		return err
	}
	reqID := evt.ID
	log := slog.With("method", method, "request_id", types.ShortID(reqID))
	c.setState(reqID, StateRequestBuilt)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		winMu    sync.Mutex
		winner   *Response
		winRelay string
		awaiting sync.Once
	)
	onPublished := func() {
		awaiting.Do(func() { c.setState(reqID, StateAwaitingResponse) })
	}

	c.setState(reqID, StateRelaysConnecting)
	g, gctx := errgroup.WithContext(ctx)
	for _, url := range c.config.Relays {
		url := url
		g.Go(func() error {
			resp, err := c.raceRelay(gctx, url, evt, method, onPublished)
			if err != nil {
				if gctx.Err() == nil {
					log.Debug("NWC: relay contributed no response", "relay", url, "error", err)
				}
				return nil
			}
			winMu.Lock()
			defer winMu.Unlock()
			if winner == nil {
				winner, winRelay = resp, url
			}
			return errResolved
		})
	}
	_ = g.Wait()

	if winner == nil {
		c.setState(reqID, StateExhausted)
		if err := ctx.Err(); err != nil {
			return types.WrapError(types.KindTransportExhausted, err, "no relay returned a response to %s", method)
		}
		return types.NewError(types.KindTransportExhausted, "no relay returned a response to %s", method)
	}

	if winner.Error != nil {
		c.setState(reqID, StateResolvedFailure)
		log.Debug("NWC: wallet returned error", "relay", winRelay, "code", winner.Error.Code, "message", winner.Error.Message)
		return &types.Error{
			Kind:    types.KindRemoteWallet,
			Code:    winner.Error.Code,
			Message: winner.Error.Message,
		}
	}

	c.setState(reqID, StateResolvedSuccess)
	log.Debug("NWC: response received", "relay", winRelay, "result_type", winner.ResultType)
	if result != nil && len(winner.Result) > 0 {
		if err := json.Unmarshal(winner.Result, result); err != nil {
			return types.WrapError(types.KindPaymentFailed, err, "failed to parse %s result", method)
		}
	}
	return nil
}

// buildRequest encrypts {method, params} to the wallet service and signs a
// kind-23194 event with the connection secret.
func (c *Client) buildRequest(method string, params interface{}) (*types.Event, error) {
	if params == nil {
		params = struct{}{}
	}
	requestJSON, err := json.Marshal(Request{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// NIP-04; many wallet services do not support NIP-44 yet
	encrypted, err := nips.Nip04Encrypt(string(requestJSON), c.config.Nip04SharedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt request: %w", err)
	}

	evt := &types.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      types.KindNWCRequest,
		Tags:      [][]string{{"p", c.config.WalletPubKeyHex()}},
		Content:   encrypted,
	}
	if err := nostr.SignEvent(evt, c.config.Secret); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	return evt, nil
}

// raceRelay runs the whole exchange on one relay. It returns the first
// correlated response that decrypts and parses. The connection is closed
// on every return path.
func (c *Client) raceRelay(ctx context.Context, url string, req *types.Event, method string, onPublished func()) (*Response, error) {
	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := c.confirmSupport(ctx, conn, method); err != nil {
		return nil, err
	}

	filter := types.Filter{
		Kinds:   []int{types.KindNWCResponse},
		Authors: []string{c.config.WalletPubKeyHex()},
		ETags:   []string{req.ID},
	}
	sub, err := conn.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	if err := conn.Publish(ctx, req); err != nil {
		return nil, err
	}
	onPublished()

	for {
		select {
		case evt := <-sub.Events:
			if !filter.Matches(&evt) {
				continue
			}
			resp, err := c.decodeResponse(&evt)
			if err != nil {
				slog.Debug("NWC: skipping undecodable response", "relay", url, "event_id", types.ShortID(evt.ID), "error", err)
				continue
			}
			return resp, nil
		case <-sub.Done:
			return nil, relay.ErrConnClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// confirmSupport waits for the service's kind-13194 info event on conn and
// checks that it lists method.
func (c *Client) confirmSupport(ctx context.Context, conn relay.Conn, method string) error {
	sub, err := conn.Subscribe(ctx, types.Filter{
		Kinds:   []int{types.KindNWCInfo},
		Authors: []string{c.config.WalletPubKeyHex()},
		Limit:   1,
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case evt := <-sub.Events:
			if evt.Kind != types.KindNWCInfo || evt.PubKey != c.config.WalletPubKeyHex() {
				continue
			}
			if !SupportsMethod(evt.Content, method) {
				return fmt.Errorf("wallet service does not advertise %s", method)
			}
			return nil
		case <-sub.EOSE:
			// Events queued ahead of EOSE still count.
			select {
			case evt := <-sub.Events:
				if evt.Kind == types.KindNWCInfo && evt.PubKey == c.config.WalletPubKeyHex() && SupportsMethod(evt.Content, method) {
					return nil
				}
			default:
			}
			return errors.New("no wallet info event on relay")
		case <-sub.Done:
			return relay.ErrConnClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SupportsMethod reports whether a kind-13194 content lists method.
func SupportsMethod(infoContent, method string) bool {
	for _, m := range strings.Fields(infoContent) {
		if m == method {
			return true
		}
	}
	return false
}

// decodeResponse decrypts a kind-23195 event. NIP-04 payloads carry an
// "?iv=" suffix; anything else is tried as NIP-44.
func (c *Client) decodeResponse(evt *types.Event) (*Response, error) {
	var (
		plaintext string
		err       error
	)
	if strings.Contains(evt.Content, "?iv=") {
		plaintext, err = nips.Nip04Decrypt(evt.Content, c.config.Nip04SharedKey)
	} else {
		plaintext, err = nips.Nip44Decrypt(evt.Content, c.config.ConversationKey)
	}
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(plaintext), &resp); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if resp.Error == nil && resp.Result == nil {
		return nil, errors.New("response has neither result nor error")
	}
	return &resp, nil
}
