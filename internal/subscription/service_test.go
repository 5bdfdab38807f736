package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-zapwallet/internal/cache"
	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/nostr"
	"nostr-zapwallet/internal/relay"
	"nostr-zapwallet/internal/relay/relaytest"
	"nostr-zapwallet/internal/types"
	"nostr-zapwallet/internal/zap"
)

var testRelays = []string{"wss://one.example", "wss://two.example"}

func newTestService(t *testing.T, signer nostr.Signer, events ...types.Event) (*Service, *relaytest.MemoryDialer) {
	t.Helper()
	d := relaytest.NewMemoryDialer(events...)
	svc := NewService(Config{
		Pool:   relay.NewPool(d).WithTimeout(2 * time.Second),
		Relays: testRelays,
		Signer: signer,
		Lnurl:  lnurl.NewClient(0, lnurl.WithPrivateHosts(), lnurl.WithInsecure()),
		Cache:  cache.NewMemoryCache(100, time.Minute),
	})
	return svc, d
}

func newSigner(t *testing.T) *nostr.KeySigner {
	t.Helper()
	s, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	return s
}

func pubkey(t *testing.T, s nostr.Signer) string {
	t.Helper()
	pk, err := s.GetPublicKey(context.Background())
	require.NoError(t, err)
	return pk
}

func signed(t *testing.T, s nostr.Signer, evt *types.Event) types.Event {
	t.Helper()
	require.NoError(t, s.SignEvent(context.Background(), evt))
	return *evt
}

func TestFetchSettingsMissingIsCached(t *testing.T) {
	svc, d := newTestService(t, nil)
	creator := pubkey(t, newSigner(t))

	s, err := svc.FetchSettings(context.Background(), creator)
	require.NoError(t, err)
	assert.Nil(t, s)
	queries := d.Queries()

	s, err = svc.FetchSettings(context.Background(), creator)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, queries, d.Queries(), "second lookup should hit the cache")

	def, err := svc.SettingsOrDefault(context.Background(), creator)
	require.NoError(t, err)
	assert.EqualValues(t, zap.DefaultMonthlyPrice, def.MonthlyPrice)
}

func TestPublishAndFetchSettings(t *testing.T) {
	creator := newSigner(t)
	svc, d := newTestService(t, creator)

	evt, err := svc.PublishSettings(context.Background(), &zap.Settings{
		MonthlyPrice: 2000,
		Bundles:      []zap.Bundle{{Months: 3, DiscountPercent: 10, TotalSats: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.KindAppSpecificData, evt.Kind)
	assert.Equal(t, len(testRelays), d.Published())

	// a second service sees it through the relays, not the cache
	reader, _ := newTestService(t, nil, d.Events()...)
	s, err := reader.FetchSettings(context.Background(), pubkey(t, creator))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.EqualValues(t, 2000, s.MonthlyPrice)
	require.Len(t, s.Bundles, 1)
	assert.EqualValues(t, 5400, s.Bundles[0].TotalSats)
	assert.EqualValues(t, 5400, s.PriceFor(3))
}

func TestPublishRequiresSigner(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.PublishReceipt(context.Background(), "ab", 1, 10000, "")
	assert.Equal(t, types.KindNotInitialized, types.KindOf(err))

	_, err = svc.PublishSettings(context.Background(), &zap.Settings{MonthlyPrice: 0})
	assert.Equal(t, types.KindAmountOutOfRange, types.KindOf(err))
}

func TestHasAccess(t *testing.T) {
	viewer := newSigner(t)
	creator := pubkey(t, newSigner(t))
	svc, _ := newTestService(t, viewer)
	ctx := context.Background()

	ok, err := svc.HasAccess(ctx, pubkey(t, viewer), creator)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.PublishReceipt(ctx, creator, 1, 10000, "")
	require.NoError(t, err)

	ok, err = svc.HasAccess(ctx, pubkey(t, viewer), creator)
	require.NoError(t, err)
	assert.True(t, ok)

	exp, err := svc.Expiry(ctx, pubkey(t, viewer), creator)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), exp, time.Minute)

	svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	ok, err = svc.HasAccess(ctx, pubkey(t, viewer), creator)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasAccess(ctx, creator, creator)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasAccessAllRelaysDown(t *testing.T) {
	svc, d := newTestService(t, nil)
	for _, r := range testRelays {
		d.SetDown(r, true)
	}
	_, err := svc.HasAccess(context.Background(), "aa", "bb")
	assert.Equal(t, types.KindTransportExhausted, types.KindOf(err))
	assert.Equal(t, 0, d.Live())
}

type lnurlEndpoint struct {
	srv       *httptest.Server
	hits      atomic.Int32
	lastQuery atomic.Value
}

func newLnurlEndpoint(t *testing.T, commentAllowed int) *lnurlEndpoint {
	t.Helper()
	e := &lnurlEndpoint{}
	mux := http.NewServeMux()
	mux.HandleFunc("/lnurlp", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tag":            "payRequest",
			"callback":       e.srv.URL + "/cb",
			"minSendable":    1000,
			"maxSendable":    100000000,
			"metadata":       `[["text/plain","creator"]]`,
			"commentAllowed": commentAllowed,
		})
	})
	mux.HandleFunc("/cb", func(w http.ResponseWriter, r *http.Request) {
		e.hits.Add(1)
		e.lastQuery.Store(r.URL.Query())
		json.NewEncoder(w).Encode(map[string]interface{}{"pr": "lnbc1pvjluezpp5qqq", "routes": []interface{}{}})
	})
	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *lnurlEndpoint) creatorService(t *testing.T) (*Service, string) {
	t.Helper()
	creatorSigner := newSigner(t)
	profile := signed(t, creatorSigner, &types.Event{
		Kind:      types.KindMetadata,
		CreatedAt: time.Now().Unix(),
		Content:   `{"name":"creator","lud06":"` + e.srv.URL + `/lnurlp"}`,
	})
	svc, _ := newTestService(t, nil, profile)
	return svc, pubkey(t, creatorSigner)
}

func TestInvoice(t *testing.T) {
	e := newLnurlEndpoint(t, 100)
	svc, creator := e.creatorService(t)

	pr, err := svc.Invoice(context.Background(), creator, 3, 9000)
	require.NoError(t, err)
	assert.Equal(t, "lnbc1pvjluezpp5qqq", pr)
	require.EqualValues(t, 1, e.hits.Load())

	q := e.lastQuery.Load().(url.Values)
	assert.Equal(t, "27000000", q.Get("amount"))
	assert.Equal(t, "Subscription for 3 month(s) (27000 sats) via Nostr", q.Get("comment"))
}

func TestInvoiceCommentTrimmed(t *testing.T) {
	tests := []struct {
		allowed int
		want    string
		sent    bool
	}{
		{allowed: 12, want: "Subscription", sent: true},
		{allowed: 0, sent: false},
	}
	for _, tt := range tests {
		e := newLnurlEndpoint(t, tt.allowed)
		svc, creator := e.creatorService(t)

		_, err := svc.Invoice(context.Background(), creator, 1, 10000)
		require.NoError(t, err)
		q := e.lastQuery.Load().(url.Values)
		assert.Equal(t, tt.sent, q.Has("comment"), "commentAllowed %d", tt.allowed)
		assert.Equal(t, tt.want, q.Get("comment"))
	}
}

func TestInvoiceWithoutLightningAddress(t *testing.T) {
	creatorSigner := newSigner(t)
	profile := signed(t, creatorSigner, &types.Event{
		Kind:      types.KindMetadata,
		CreatedAt: time.Now().Unix(),
		Content:   `{"name":"no wallet"}`,
	})
	svc, _ := newTestService(t, nil, profile)

	_, err := svc.Invoice(context.Background(), pubkey(t, creatorSigner), 1, 10000)
	assert.Equal(t, types.KindUnsupportedDestination, types.KindOf(err))

	_, err = svc.Invoice(context.Background(), pubkey(t, creatorSigner), 0, 10000)
	assert.Equal(t, types.KindAmountOutOfRange, types.KindOf(err))
}

func TestInvoiceComment(t *testing.T) {
	assert.Equal(t, "Subscription for 1 month(s) (10000 sats) via Nostr", InvoiceComment(1, 10000))
}

func TestProfileMissIsCached(t *testing.T) {
	svc, d := newTestService(t, nil)
	pk := pubkey(t, newSigner(t))

	p, err := svc.Profile(context.Background(), pk)
	require.NoError(t, err)
	assert.Nil(t, p)
	queries := d.Queries()

	_, err = svc.Invoice(context.Background(), pk, 1, 10000)
	assert.Equal(t, types.KindUnsupportedDestination, types.KindOf(err))
	assert.Equal(t, queries, d.Queries())
}
