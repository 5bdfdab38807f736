package nwc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-zapwallet/internal/cache"
	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/types"
	"nostr-zapwallet/internal/wallet"
)

func newTestAdapter(t *testing.T) (*Adapter, *fakeWalletService, *Config, *fakeDialer) {
	svc, cfg, d := newFixture(t, relayA)
	mem := cache.NewMemoryCache(100, time.Minute)
	t.Cleanup(func() { mem.Close() })
	a := NewAdapter(d, lnurl.NewClient(time.Second),
		WithClientOptions(WithTimeout(2*time.Second)),
		WithInfoCache(cache.NewStore[InfoResult](mem, "nwc-info"), time.Minute))
	return a, svc, cfg, d
}

func TestAdapterRequiresInitialize(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)
	_, err := a.GetBalance(context.Background())
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, err = a.SendPayment(context.Background(), "lnbc1")
	assert.ErrorIs(t, err, types.ErrNotInitialized)

	err = a.Initialize(context.Background(), wallet.Config{NWCURI: "nostr+walletconnect://nope"})
	assert.Equal(t, types.KindNotInitialized, types.KindOf(err))
}

func TestAdapterOperations(t *testing.T) {
	a, svc, cfg, d := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Initialize(ctx, wallet.Config{NWCURI: cfg.URI()}))
	require.NoError(t, a.Initialize(ctx, wallet.Config{NWCURI: "ignored while connected"}))

	bal, err := a.GetBalance(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 21000, bal)

	res, err := a.SendPayment(ctx, "lnbc1")
	require.NoError(t, err)
	raw, _ := hex.DecodeString(svc.preimage)
	hash := sha256.Sum256(raw)
	assert.Equal(t, hex.EncodeToString(hash[:]), res.ID)
	assert.Equal(t, wallet.StatusSuccess, res.Status)

	pr, err := a.CreateInvoice(ctx, 21000, "tip")
	require.NoError(t, err)
	assert.Equal(t, "lnbc210n1fake", pr)

	list, err := a.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, wallet.Outgoing, list[0].Direction)
	assert.Equal(t, wallet.StatusSuccess, list[0].Status)
	assert.Equal(t, wallet.StatusPending, list[1].Status)

	info, err := a.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake", info.Alias)
	before := d.dials.Load()
	_, err = a.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, d.dials.Load(), "second Info should be served from cache")

	require.NoError(t, a.Disconnect(ctx))
	_, err = a.GetBalance(ctx)
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	assert.EqualValues(t, 0, d.live.Load())
}

func TestAdapterConcurrentBalance(t *testing.T) {
	a, _, cfg, _ := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Initialize(ctx, wallet.Config{NWCURI: cfg.URI()}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bal, err := a.GetBalance(ctx)
			assert.NoError(t, err)
			assert.EqualValues(t, 21000, bal)
		}()
	}
	wg.Wait()
}

func TestAdapterThroughSession(t *testing.T) {
	a, _, cfg, d := newTestAdapter(t)
	d.behaviors[relayA] = respondError
	s, err := wallet.Connect(context.Background(), a, wallet.Config{Provider: "nwc", NWCURI: cfg.URI()})
	require.NoError(t, err)
	assert.True(t, s.State().Initialized)
	assert.Nil(t, s.State().BalanceMsat)

	_, err = s.SendBolt11(context.Background(), "lnbc1")
	assert.True(t, types.IsInsufficientBalance(err))
}

func TestPaymentID(t *testing.T) {
	assert.Len(t, paymentID("zz"), 36)
	assert.Len(t, paymentID(""), 36)
	assert.Len(t, paymentID("0000000000000000000000000000000000000000000000000000000000000001"), 64)
}
