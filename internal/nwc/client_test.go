package nwc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/types"
)

const (
	relayA = "wss://a.relay.example.com"
	relayB = "wss://b.relay.example.com"
	relayC = "wss://c.relay.example.com"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) hook(_ string, s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func TestPayInvoiceFirstResponseWins(t *testing.T) {
	svc, cfg, d := newFixture(t, relayA, relayB)
	d.delays[relayA] = 10 * time.Millisecond
	d.behaviors[relayB] = respondError
	d.delays[relayB] = 300 * time.Millisecond

	rec := &stateRecorder{}
	c := NewClient(cfg, d, WithTimeout(2*time.Second), WithStateHook(rec.hook))

	res, err := c.PayInvoice(context.Background(), "lnbc500n1pvjluezpp5qqq")
	require.NoError(t, err)
	assert.Equal(t, svc.preimage, res.Preimage)
	assert.EqualValues(t, 0, d.live.Load(), "all relay connections must be closed")

	assert.Equal(t, []State{StateIdle, StateRequestBuilt, StateRelaysConnecting, StateAwaitingResponse, StateResolvedSuccess}, rec.states)
}

func TestRequestIsPublishedEverywhere(t *testing.T) {
	svc, cfg, d := newFixture(t, relayA, relayB)
	d.behaviors[relayB] = silent
	c := NewClient(cfg, d, WithTimeout(2*time.Second))

	_, err := c.PayInvoice(context.Background(), "lnbc1invoice")
	require.NoError(t, err)

	// the winner may cancel B before it publishes; A always has
	reqs := d.published(relayA)
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, types.KindNWCRequest, req.Kind)
	assert.Equal(t, svc.pubkey, types.TagValue(req.Tags, "p"))
	assert.Equal(t, cfg.ClientPubKeyHex(), req.PubKey)

	plain, err := nips.Nip04Decrypt(req.Content, svc.sharedKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"pay_invoice","params":{"invoice":"lnbc1invoice"}}`, plain)
}

func TestPayInvoiceAmountIsSent(t *testing.T) {
	svc, cfg, d := newFixture(t, relayA)
	c := NewClient(cfg, d, WithTimeout(2*time.Second))

	_, err := c.PayInvoiceAmount(context.Background(), "lnbc1invoice", 21000)
	require.NoError(t, err)

	reqs := d.published(relayA)
	require.Len(t, reqs, 1)
	plain, err := nips.Nip04Decrypt(reqs[0].Content, svc.sharedKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"pay_invoice","params":{"invoice":"lnbc1invoice","amount":21000}}`, plain)
}

func TestWrongRequestIDNeverResolves(t *testing.T) {
	_, cfg, d := newFixture(t, relayA)
	d.behaviors[relayA] = wrongRequestID
	rec := &stateRecorder{}
	c := NewClient(cfg, d, WithTimeout(200*time.Millisecond), WithStateHook(rec.hook))

	_, err := c.PayInvoice(context.Background(), "lnbc1")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransportExhausted)
	assert.Equal(t, StateExhausted, rec.last())
	assert.EqualValues(t, 0, d.live.Load())
}

func TestThreeRelaysOneAnswers(t *testing.T) {
	svc, cfg, d := newFixture(t, relayA, relayB, relayC)
	d.behaviors[relayA] = refuse
	d.behaviors[relayB] = silent
	d.delays[relayC] = 50 * time.Millisecond
	c := NewClient(cfg, d, WithTimeout(2*time.Second))

	start := time.Now()
	res, err := c.PayInvoice(context.Background(), "lnbc1")
	require.NoError(t, err)
	assert.Equal(t, svc.preimage, res.Preimage)
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 3, d.dials.Load())
	assert.EqualValues(t, 0, d.live.Load())
}

func TestRemoteWalletError(t *testing.T) {
	_, cfg, d := newFixture(t, relayA)
	d.behaviors[relayA] = respondError
	rec := &stateRecorder{}
	c := NewClient(cfg, d, WithTimeout(2*time.Second), WithStateHook(rec.hook))

	_, err := c.PayInvoice(context.Background(), "lnbc1")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRemoteWallet)
	assert.Equal(t, types.NWCErrorInsufficientBalance, types.CodeOf(err))
	assert.True(t, types.IsInsufficientBalance(err))
	assert.Contains(t, err.Error(), "not enough funds")
	assert.Equal(t, StateResolvedFailure, rec.last())
	assert.EqualValues(t, 0, d.live.Load())
}

func TestDeadlineExhausts(t *testing.T) {
	_, cfg, d := newFixture(t, relayA, relayB)
	d.behaviors[relayA] = silent
	d.behaviors[relayB] = silent
	c := NewClient(cfg, d, WithTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := c.PayInvoice(context.Background(), "lnbc1")
	assert.Equal(t, types.KindTransportExhausted, types.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 0, d.live.Load())
}

func TestAllRelaysRefuse(t *testing.T) {
	_, cfg, d := newFixture(t, relayA, relayB)
	d.behaviors[relayA] = refuse
	d.behaviors[relayB] = refuse
	c := NewClient(cfg, d, WithTimeout(5*time.Second))

	start := time.Now()
	_, err := c.PayInvoice(context.Background(), "lnbc1")
	assert.Equal(t, types.KindTransportExhausted, types.KindOf(err))
	// no waiting for the deadline when nothing is left to wait on
	assert.Less(t, time.Since(start), time.Second)
}

func TestUndecryptableResponseIsSkipped(t *testing.T) {
	svc, cfg, d := newFixture(t, relayA)
	d.behaviors[relayA] = garbageThenRespond
	c := NewClient(cfg, d, WithTimeout(2*time.Second))

	res, err := c.PayInvoice(context.Background(), "lnbc1")
	require.NoError(t, err)
	assert.Equal(t, svc.preimage, res.Preimage)
}

func TestRelayWithoutInfoContributesNothing(t *testing.T) {
	_, cfg, d := newFixture(t, relayA)
	d.behaviors[relayA] = noInfo
	c := NewClient(cfg, d, WithTimeout(2*time.Second))

	_, err := c.PayInvoice(context.Background(), "lnbc1")
	assert.Equal(t, types.KindTransportExhausted, types.KindOf(err))
	assert.Empty(t, d.published(relayA), "request must not be published without wallet info")
}

func TestUnsupportedMethod(t *testing.T) {
	svc, cfg, d := newFixture(t, relayA)
	svc.info = "get_balance"
	c := NewClient(cfg, d, WithTimeout(2*time.Second))

	_, err := c.PayInvoice(context.Background(), "lnbc1")
	assert.Equal(t, types.KindTransportExhausted, types.KindOf(err))

	bal, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 21000, bal.Balance)
}

func TestCallerCancellation(t *testing.T) {
	_, cfg, d := newFixture(t, relayA)
	d.behaviors[relayA] = silent
	c := NewClient(cfg, d, WithTimeout(10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := c.PayInvoice(ctx, "lnbc1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, d.live.Load())
}

func TestOtherMethods(t *testing.T) {
	_, cfg, d := newFixture(t, relayA)
	c := NewClient(cfg, d, WithTimeout(2*time.Second))
	ctx := context.Background()

	inv, err := c.MakeInvoice(ctx, 21000, "tip")
	require.NoError(t, err)
	assert.Equal(t, "lnbc210n1fake", inv.Invoice)

	txs, err := c.ListTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, txs.Transactions, 2)

	info, err := c.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake", info.Alias)
}

func TestSupportsMethod(t *testing.T) {
	assert.True(t, SupportsMethod("pay_invoice get_balance", "get_balance"))
	assert.True(t, SupportsMethod(" pay_invoice\n", "pay_invoice"))
	assert.False(t, SupportsMethod("pay_invoices", "pay_invoice"))
	assert.False(t, SupportsMethod("", "pay_invoice"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_response", StateAwaitingResponse.String())
	assert.True(t, StateExhausted.Terminal())
	assert.False(t, StateRelaysConnecting.Terminal())
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(types.NewError(types.KindTransportExhausted, "x")))
	assert.True(t, IsRetryableError(&types.Error{Kind: types.KindRemoteWallet, Code: types.NWCErrorRateLimited}))
	assert.False(t, IsRetryableError(&types.Error{Kind: types.KindRemoteWallet, Code: types.NWCErrorInsufficientBalance}))
	assert.False(t, IsRetryableError(nil))
}
