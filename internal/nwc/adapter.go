package nwc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"nostr-zapwallet/internal/cache"
	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/relay"
	"nostr-zapwallet/internal/types"
	"nostr-zapwallet/internal/wallet"
)

const defaultListLimit = 50

// Adapter is the NWC-backed wallet.Adapter.
type Adapter struct {
	dialer  relay.Dialer
	lnurl   *lnurl.Client
	opts    []Option
	info    *cache.Store[InfoResult]
	infoTTL time.Duration

	life   wallet.Lifecycle
	mu     sync.RWMutex
	client *Client

	balanceGroup singleflight.Group
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithClientOptions passes opts to the Client built on Initialize.
func WithClientOptions(opts ...Option) AdapterOption {
	return func(a *Adapter) { a.opts = append(a.opts, opts...) }
}

// WithInfoCache caches get_info results per wallet service.
func WithInfoCache(store *cache.Store[InfoResult], ttl time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.info = store
		a.infoTTL = ttl
	}
}

// NewAdapter creates an adapter dialing relays with dialer.
func NewAdapter(dialer relay.Dialer, lnurlClient *lnurl.Client, opts ...AdapterOption) *Adapter {
	a := &Adapter{dialer: dialer, lnurl: lnurlClient}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ wallet.Adapter = (*Adapter)(nil)

// Initialize parses cfg.NWCURI. No connection is opened until a request is made.
func (a *Adapter) Initialize(ctx context.Context, cfg wallet.Config) error {
	return a.life.Initialize(func() error {
		conf, err := ParseURI(cfg.NWCURI)
		if err != nil {
			return types.WrapError(types.KindNotInitialized, err, "invalid NWC connection")
		}
		a.mu.Lock()
		a.client = NewClient(conf, a.dialer, a.opts...)
		a.mu.Unlock()
		slog.Info("NWC: wallet configured", "wallet", types.ShortID(conf.WalletPubKeyHex()), "relays", len(conf.Relays))
		return nil
	})
}

func (a *Adapter) current(op string) (*Client, error) {
	if err := a.life.Require(op); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.client == nil {
		return nil, types.NewError(types.KindNotInitialized, "%s called before initialize", op)
	}
	return a.client, nil
}

// GetBalance returns the balance in msat. Concurrent calls share one request.
func (a *Adapter) GetBalance(ctx context.Context) (int64, error) {
	c, err := a.current("getBalance")
	if err != nil {
		return 0, err
	}
	v, err, shared := a.balanceGroup.Do(c.Config().WalletPubKeyHex(), func() (interface{}, error) {
		return c.GetBalance(ctx)
	})
	if shared {
		slog.Debug("singleflight: shared balance fetch")
	}
	if err != nil {
		return 0, err
	}
	return v.(*BalanceResult).Balance, nil
}

func (a *Adapter) CreateInvoice(ctx context.Context, amountMsat int64, memo string) (string, error) {
	c, err := a.current("createInvoice")
	if err != nil {
		return "", err
	}
	tx, err := c.MakeInvoice(ctx, amountMsat, memo)
	if err != nil {
		return "", err
	}
	if tx.Invoice == "" {
		return "", types.NewError(types.KindPaymentFailed, "wallet returned no invoice")
	}
	return tx.Invoice, nil
}

func (a *Adapter) SendPayment(ctx context.Context, bolt11 string) (*wallet.PayResult, error) {
	return a.SendPaymentAmount(ctx, bolt11, 0)
}

// SendPaymentAmount pays an amountless invoice for amountMsat.
func (a *Adapter) SendPaymentAmount(ctx context.Context, bolt11 string, amountMsat int64) (*wallet.PayResult, error) {
	c, err := a.current("sendPayment")
	if err != nil {
		return nil, err
	}
	res, err := c.PayInvoiceAmount(ctx, bolt11, amountMsat)
	if err != nil {
		return nil, err
	}
	return &wallet.PayResult{
		ID:       paymentID(res.Preimage),
		Status:   wallet.StatusSuccess,
		Preimage: res.Preimage,
		FeesMsat: res.FeesPaid,
	}, nil
}

// paymentID is the payment hash when the preimage is a valid hex value.
func paymentID(preimage string) string {
	raw, err := hex.DecodeString(preimage)
	if err != nil || len(raw) != 32 {
		return uuid.NewString()
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (a *Adapter) PayLnurlPay(ctx context.Context, target string, amountMsat int64, comment, zapRequestJSON string) (*wallet.PayResult, error) {
	if _, err := a.current("payLnurlPay"); err != nil {
		return nil, err
	}
	return wallet.PayLnurl(ctx, a.lnurl, target, amountMsat, comment, zapRequestJSON, a.SendPayment)
}

func (a *Adapter) ListPayments(ctx context.Context) ([]wallet.Payment, error) {
	c, err := a.current("listPayments")
	if err != nil {
		return nil, err
	}
	res, err := c.ListTransactions(ctx, defaultListLimit)
	if err != nil {
		return nil, err
	}
	out := make([]wallet.Payment, 0, len(res.Transactions))
	for _, tx := range res.Transactions {
		out = append(out, convertTransaction(tx))
	}
	return out, nil
}

func convertTransaction(tx Transaction) wallet.Payment {
	p := wallet.Payment{
		ID:          tx.PaymentHash,
		Direction:   wallet.Incoming,
		AmountMsat:  tx.Amount,
		FeesMsat:    tx.FeesPaid,
		Invoice:     tx.Invoice,
		Description: tx.Description,
		PaymentHash: tx.PaymentHash,
		Preimage:    tx.Preimage,
		Status:      wallet.StatusSuccess,
	}
	if tx.Type == "outgoing" {
		p.Direction = wallet.Outgoing
	}
	if tx.CreatedAt > 0 {
		p.CreatedAt = time.Unix(tx.CreatedAt, 0)
	}
	if tx.SettledAt == 0 && tx.Preimage == "" {
		p.Status = wallet.StatusPending
	}
	return p
}

// Info returns get_info, from cache when configured.
func (a *Adapter) Info(ctx context.Context) (*InfoResult, error) {
	c, err := a.current("getInfo")
	if err != nil {
		return nil, err
	}
	key := c.Config().WalletPubKeyHex()
	if a.info != nil {
		if v, ok, _ := a.info.Get(ctx, key); ok {
			return v, nil
		}
	}
	info, err := c.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	if a.info != nil {
		if err := a.info.Set(ctx, key, info, a.infoTTL); err != nil {
			slog.Debug("NWC: failed to cache wallet info", "error", err)
		}
	}
	return info, nil
}

// Disconnect drops the client. Relay connections never outlive a request.
func (a *Adapter) Disconnect(ctx context.Context) error {
	return a.life.Disconnect(func() error {
		a.mu.Lock()
		a.client = nil
		a.mu.Unlock()
		return nil
	})
}
