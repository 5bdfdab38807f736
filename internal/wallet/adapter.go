// Package wallet defines the capability surface shared by every wallet
// backend and the Session that owns one connected backend.
package wallet

import (
	"context"
	"sync"
	"time"

	"nostr-zapwallet/internal/types"
)

// Config carries backend connection settings. Each backend reads the
// fields it needs.
type Config struct {
	// Provider names the backend in logs ("nwc", "sdk").
	Provider string
	// NWCURI is a nostr+walletconnect:// connection string.
	NWCURI string
	// APIKey, Mnemonic, Network and StorageDir configure in-process SDKs.
	APIKey     string
	Mnemonic   string
	Network    string
	StorageDir string
}

// Status is the outcome of a payment.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusPending only appears in payment history.
	StatusPending Status = "pending"
)

// PayResult describes a completed send.
type PayResult struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	Preimage string `json:"preimage,omitempty"`
	FeesMsat int64  `json:"fees_msat,omitempty"`
}

// Direction of a payment relative to this wallet.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Payment is one entry of the wallet's history.
type Payment struct {
	ID          string    `json:"id"`
	Direction   Direction `json:"direction"`
	AmountMsat  int64     `json:"amount_msat"`
	FeesMsat    int64     `json:"fees_msat,omitempty"`
	Invoice     string    `json:"invoice,omitempty"`
	Description string    `json:"description,omitempty"`
	PaymentHash string    `json:"payment_hash,omitempty"`
	Preimage    string    `json:"preimage,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Adapter is implemented by every wallet backend. All methods except
// Initialize and Disconnect fail with types.ErrNotInitialized until
// Initialize has succeeded. Initialize is idempotent and Disconnect always
// leaves the adapter uninitialized.
type Adapter interface {
	Initialize(ctx context.Context, cfg Config) error
	GetBalance(ctx context.Context) (int64, error)
	CreateInvoice(ctx context.Context, amountMsat int64, memo string) (string, error)
	SendPayment(ctx context.Context, bolt11 string) (*PayResult, error)
	PayLnurlPay(ctx context.Context, target string, amountMsat int64, comment, zapRequestJSON string) (*PayResult, error)
	ListPayments(ctx context.Context) ([]Payment, error)
	Disconnect(ctx context.Context) error
}

// AmountSender is implemented by backends that can pay an amountless
// invoice for a caller-chosen amount.
type AmountSender interface {
	SendPaymentAmount(ctx context.Context, bolt11 string, amountMsat int64) (*PayResult, error)
}

// Lifecycle tracks the initialized flag for an adapter.
type Lifecycle struct {
	mu          sync.RWMutex
	initialized bool
}

// Initialize runs connect unless already initialized.
func (l *Lifecycle) Initialize(connect func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return nil
	}
	if err := connect(); err != nil {
		return err
	}
	l.initialized = true
	return nil
}

// Require returns types.ErrNotInitialized-kind errors before Initialize.
func (l *Lifecycle) Require(op string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.initialized {
		return types.NewError(types.KindNotInitialized, "%s called before initialize", op)
	}
	return nil
}

// Disconnect runs teardown and resets the flag whatever teardown returns.
func (l *Lifecycle) Disconnect(teardown func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return nil
	}
	defer func() { l.initialized = false }()
	if teardown == nil {
		return nil
	}
	return teardown()
}

// Initialized reports the current flag.
func (l *Lifecycle) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}
