package wallet

import (
	"context"
	"log/slog"
	"sync"

	"nostr-zapwallet/internal/types"
	"nostr-zapwallet/internal/util"
)

// ErrDisabled is returned by every operation of a disabled session.
var ErrDisabled = &types.Error{Kind: types.KindNotInitialized, Message: "wallet is disabled"}

// State is the session state visible to callers.
type State struct {
	Initialized bool   `json:"initialized"`
	BalanceMsat *int64 `json:"balance_msat"`
	Error       string `json:"error,omitempty"`
	Disabled    bool   `json:"disabled"`
}

// EventType names a session notification.
type EventType string

const (
	EventInitialized    EventType = "initialized"
	EventBalance        EventType = "balance"
	EventInvoiceCreated EventType = "invoice_created"
	EventPaymentSent    EventType = "payment_sent"
	EventPaymentFailed  EventType = "payment_failed"
	EventDisconnected   EventType = "disconnected"
)

// Event is delivered to OnEvents listeners.
type Event struct {
	Type        EventType
	BalanceMsat int64
	Invoice     string
	Payment     *PayResult
	Err         error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger used for wallet operation logs.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithWalletLogs enables per-operation logging.
func WithWalletLogs(enabled bool) SessionOption {
	return func(s *Session) { s.walletLogs = enabled }
}

// Session owns one connected adapter. Operations on a session are
// serialized so balance reads never race an in-flight send.
type Session struct {
	adapter    Adapter
	cfg        Config
	logger     *slog.Logger
	walletLogs bool

	opMu sync.Mutex

	stateMu sync.RWMutex
	state   State

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
}

func newSession(adapter Adapter, cfg Config, opts []SessionOption) *Session {
	s := &Session{
		adapter:   adapter,
		cfg:       cfg,
		logger:    slog.Default(),
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect initializes adapter and returns the session owning it. The
// balance is fetched once; a failure there does not fail Connect.
func Connect(ctx context.Context, adapter Adapter, cfg Config, opts ...SessionOption) (*Session, error) {
	s := newSession(adapter, cfg, opts)
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if _, err := s.GetBalance(ctx); err != nil {
		s.logf("[WALLET-BALANCE] initial balance unavailable", "error", err)
	}
	return s, nil
}

// Disabled returns a session for a user with no wallet configured.
func Disabled() *Session {
	s := newSession(nil, Config{}, nil)
	s.state.Disabled = true
	return s
}

// Init (re)initializes the adapter. It is a no-op while connected.
func (s *Session) Init(ctx context.Context) error {
	if s.adapter == nil {
		return ErrDisabled
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.logf("[WALLET-INIT] starting", "provider", s.cfg.Provider, "network", s.cfg.Network)
	if err := s.adapter.Initialize(ctx, s.cfg); err != nil {
		s.setState(func(st *State) {
			st.Initialized = false
			st.Error = err.Error()
		})
		s.logf("[WALLET-INIT] failed", "provider", s.cfg.Provider, "error", err)
		s.emit(Event{Type: EventInitialized, Err: err})
		return err
	}
	s.setState(func(st *State) {
		st.Initialized = true
		st.Error = ""
	})
	s.logf("[WALLET-INIT] connected", "provider", s.cfg.Provider)
	s.emit(Event{Type: EventInitialized})
	return nil
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	st := s.state
	if st.BalanceMsat != nil {
		b := *st.BalanceMsat
		st.BalanceMsat = &b
	}
	return st
}

// GetBalance fetches the balance in msat and records it in the state.
func (s *Session) GetBalance(ctx context.Context) (int64, error) {
	if s.adapter == nil {
		return 0, ErrDisabled
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	msat, err := s.adapter.GetBalance(ctx)
	if err != nil {
		s.recordError(err)
		return 0, err
	}
	s.setState(func(st *State) {
		st.BalanceMsat = &msat
		st.Error = ""
	})
	s.logf("[WALLET-BALANCE] updated", "balance_sats", msat/1000, "source", s.cfg.Provider)
	s.emit(Event{Type: EventBalance, BalanceMsat: msat})
	return msat, nil
}

// CreateInvoice asks the backend for an invoice of amountMsat.
func (s *Session) CreateInvoice(ctx context.Context, amountMsat int64, memo string) (string, error) {
	if s.adapter == nil {
		return "", ErrDisabled
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	pr, err := s.adapter.CreateInvoice(ctx, amountMsat, memo)
	if err != nil {
		s.recordError(err)
		return "", err
	}
	s.logf("[WALLET-PAYMENT] RECEIVE", "amount_sats", amountMsat/1000, "status", "pending", "bolt11", util.TruncateString(pr, 20))
	s.emit(Event{Type: EventInvoiceCreated, Invoice: pr})
	return pr, nil
}

// SendBolt11 pays an invoice.
func (s *Session) SendBolt11(ctx context.Context, bolt11 string) (*PayResult, error) {
	if s.adapter == nil {
		return nil, ErrDisabled
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.logf("[WALLET-PAYMENT] SEND", "status", "pending", "bolt11", util.TruncateString(bolt11, 20))
	res, err := s.adapter.SendPayment(ctx, bolt11)
	return s.finishPayment(res, err)
}

// SendBolt11Amount pays an invoice that carries no amount. Backends that
// are not an AmountSender fail with types.ErrUnsupportedOperation.
func (s *Session) SendBolt11Amount(ctx context.Context, bolt11 string, amountMsat int64) (*PayResult, error) {
	if s.adapter == nil {
		return nil, ErrDisabled
	}
	sender, ok := s.adapter.(AmountSender)
	if !ok {
		return nil, types.ErrUnsupportedOperation
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.logf("[WALLET-PAYMENT] SEND", "status", "pending", "amount_sats", amountMsat/1000, "bolt11", util.TruncateString(bolt11, 20))
	res, err := sender.SendPaymentAmount(ctx, bolt11, amountMsat)
	return s.finishPayment(res, err)
}

// PayLnurlPay pays an LNURL-pay target (Lightning address, LNURL or endpoint URL).
func (s *Session) PayLnurlPay(ctx context.Context, target string, amountMsat int64, comment, zapRequestJSON string) (*PayResult, error) {
	if s.adapter == nil {
		return nil, ErrDisabled
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.logf("[WALLET-PAYMENT] SEND", "status", "pending", "amount_sats", amountMsat/1000, "target", target)
	res, err := s.adapter.PayLnurlPay(ctx, target, amountMsat, comment, zapRequestJSON)
	return s.finishPayment(res, err)
}

func (s *Session) finishPayment(res *PayResult, err error) (*PayResult, error) {
	if err != nil {
		s.recordError(err)
		s.logf("[WALLET-ERROR] payment failed", "kind", types.KindOf(err), "error", err)
		s.emit(Event{Type: EventPaymentFailed, Err: err})
		return nil, err
	}
	if res.Status != StatusSuccess {
		s.logf("[WALLET-PAYMENT] SEND", "status", "failed", "id", res.ID)
		s.emit(Event{Type: EventPaymentFailed, Payment: res})
		return res, nil
	}
	// balance is stale until the next GetBalance
	s.setState(func(st *State) {
		st.BalanceMsat = nil
		st.Error = ""
	})
	s.logf("[WALLET-PAYMENT] SEND", "status", "completed", "id", res.ID)
	s.emit(Event{Type: EventPaymentSent, Payment: res})
	return res, nil
}

// ListPayments returns the backend's payment history.
func (s *Session) ListPayments(ctx context.Context) ([]Payment, error) {
	if s.adapter == nil {
		return nil, ErrDisabled
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	list, err := s.adapter.ListPayments(ctx)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	return list, nil
}

// OnEvents registers cb for session events and returns a function that
// removes it. Callbacks run synchronously; a panicking callback is
// recovered and logged.
func (s *Session) OnEvents(cb func(Event)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	s.listenersMu.Unlock()
	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Disconnect tears down the adapter. The session is uninitialized
// afterwards even when teardown fails.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.adapter == nil {
		return nil
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	err := s.adapter.Disconnect(ctx)
	s.setState(func(st *State) {
		st.Initialized = false
		st.BalanceMsat = nil
		if err != nil {
			st.Error = err.Error()
		}
	})
	s.logf("[WALLET-INIT] disconnected", "provider", s.cfg.Provider, "error", err)
	s.emit(Event{Type: EventDisconnected, Err: err})
	return err
}

func (s *Session) setState(fn func(*State)) {
	s.stateMu.Lock()
	fn(&s.state)
	s.stateMu.Unlock()
}

func (s *Session) recordError(err error) {
	s.setState(func(st *State) {
		st.Error = err.Error()
		if types.KindOf(err) == types.KindNotInitialized {
			st.Initialized = false
		}
	})
}

func (s *Session) emit(evt Event) {
	s.listenersMu.Lock()
	cbs := make([]func(Event), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.listenersMu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("wallet: event listener panicked", "event", evt.Type, "panic", r)
				}
			}()
			cb(evt)
		}()
	}
}

func (s *Session) logf(msg string, args ...any) {
	if !s.walletLogs {
		return
	}
	s.logger.Info(msg, args...)
}
