package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-zapwallet/internal/resolver"
	"nostr-zapwallet/internal/types"
)

type fakeEndpoint struct {
	server        *httptest.Server
	callbackHits  atomic.Int32
	lastQuery     atomic.Value
	params        map[string]interface{}
	invoice       string
	callbackError string
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	f := &fakeEndpoint{invoice: "lnbc500n1pvjluezpp5qqq"}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlp/bob", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.params)
	})
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		f.callbackHits.Add(1)
		f.lastQuery.Store(r.URL.Query())
		if f.callbackError != "" {
			json.NewEncoder(w).Encode(map[string]string{"status": "ERROR", "reason": f.callbackError})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"pr": f.invoice, "routes": []interface{}{}})
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status":"ERROR","reason":"user not found"}`)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	f.params = map[string]interface{}{
		"tag":            "payRequest",
		"callback":       f.server.URL + "/callback",
		"minSendable":    1000,
		"maxSendable":    1000000000,
		"metadata":       `[["text/plain","Pay bob"],["text/identifier","bob@example.com"]]`,
		"commentAllowed": 20,
		"allowsNostr":    true,
		"nostrPubkey":    strings.Repeat("c", 64),
	}
	return f
}

func (f *fakeEndpoint) query() url.Values {
	v, _ := f.lastQuery.Load().(url.Values)
	return v
}

func testClient() *Client {
	return NewClient(0, WithPrivateHosts(), WithInsecure())
}

func TestFetchPayParams(t *testing.T) {
	f := newFakeEndpoint(t)
	p, err := testClient().FetchPayParams(context.Background(), f.server.URL+"/.well-known/lnurlp/bob")
	require.NoError(t, err)

	assert.Equal(t, f.server.URL+"/callback", p.Callback)
	assert.EqualValues(t, 1000, p.MinSendableMsat)
	assert.EqualValues(t, 1000000000, p.MaxSendableMsat)
	assert.Equal(t, 20, p.CommentAllowed)
	assert.True(t, p.SupportsZaps())
	assert.Equal(t, "Pay bob", p.Description())

	d := p.Destination("bob@example.com")
	assert.Equal(t, resolver.KindLnurlPay, d.Kind())
	assert.EqualValues(t, 1000, d.MinMsat)
}

func TestFetchPayParamsErrors(t *testing.T) {
	f := newFakeEndpoint(t)
	c := testClient()

	_, err := c.FetchPayParams(context.Background(), f.server.URL+"/broken")
	assert.Equal(t, types.KindLnurlEndpoint, types.KindOf(err))

	_, err = c.FetchPayParams(context.Background(), f.server.URL+"/error")
	require.Error(t, err)
	assert.Equal(t, types.KindLnurlEndpoint, types.KindOf(err))
	assert.Contains(t, err.Error(), "user not found")

	f.params["tag"] = "withdrawRequest"
	_, err = c.FetchPayParams(context.Background(), f.server.URL+"/.well-known/lnurlp/bob")
	assert.Equal(t, types.KindLnurlEndpoint, types.KindOf(err))
}

func TestFetchPayParamsRejectsPrivateHosts(t *testing.T) {
	_, err := NewClient(0).FetchPayParams(context.Background(), "http://127.0.0.1:9/lnurlp")
	assert.Equal(t, types.KindLnurlEndpoint, types.KindOf(err))
}

func TestRequestInvoice(t *testing.T) {
	f := newFakeEndpoint(t)
	c := testClient()
	p, err := c.FetchPayParams(context.Background(), f.server.URL+"/.well-known/lnurlp/bob")
	require.NoError(t, err)

	pr, err := c.RequestInvoice(context.Background(), p, 50000, "thanks!", `{"kind":9734}`)
	require.NoError(t, err)
	assert.Equal(t, f.invoice, pr)

	q := f.query()
	assert.Equal(t, "50000", q.Get("amount"))
	assert.Equal(t, "thanks!", q.Get("comment"))
	assert.Equal(t, `{"kind":9734}`, q.Get("nostr"))
}

func TestRequestInvoiceOptionalParams(t *testing.T) {
	f := newFakeEndpoint(t)
	c := testClient()
	p, err := c.FetchPayParams(context.Background(), f.server.URL+"/.well-known/lnurlp/bob")
	require.NoError(t, err)

	// comment longer than commentAllowed is dropped, not truncated
	p.AllowsNostr = false
	_, err = c.RequestInvoice(context.Background(), p, 50000, strings.Repeat("x", 21), `{"kind":9734}`)
	require.NoError(t, err)
	q := f.query()
	assert.False(t, q.Has("comment"))
	assert.False(t, q.Has("nostr"))

	// allowsNostr without a pubkey is not enough
	p.AllowsNostr = true
	p.NostrPubkey = ""
	p.CommentAllowed = 0
	_, err = c.RequestInvoice(context.Background(), p, 50000, "hi", `{"kind":9734}`)
	require.NoError(t, err)
	q = f.query()
	assert.False(t, q.Has("comment"))
	assert.False(t, q.Has("nostr"))
}

func TestRequestInvoiceCommentLength(t *testing.T) {
	tests := []struct {
		name    string
		allowed int
		comment string
		sent    bool
	}{
		{"ascii within limit", 10, "thanks!", true},
		{"multibyte counted in characters", 10, "ありがとう!", true},
		{"multibyte at limit", 6, "ありがとう!", true},
		{"multibyte over limit", 5, "ありがとう!", false},
		{"emoji", 1, "⚡", true},
	}

	f := newFakeEndpoint(t)
	c := testClient()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := c.FetchPayParams(context.Background(), f.server.URL+"/.well-known/lnurlp/bob")
			require.NoError(t, err)
			p.CommentAllowed = tt.allowed

			_, err = c.RequestInvoice(context.Background(), p, 50000, tt.comment, "")
			require.NoError(t, err)
			q := f.query()
			assert.Equal(t, tt.sent, q.Has("comment"))
			if tt.sent {
				assert.Equal(t, tt.comment, q.Get("comment"))
			}
		})
	}
}

func TestRequestInvoiceAmountOutOfRangeSkipsHTTP(t *testing.T) {
	f := newFakeEndpoint(t)
	c := testClient()
	p, err := c.FetchPayParams(context.Background(), f.server.URL+"/.well-known/lnurlp/bob")
	require.NoError(t, err)

	for _, amt := range []int64{999, 1000000001, 0, -5} {
		_, err := c.RequestInvoice(context.Background(), p, amt, "", "")
		assert.Equal(t, types.KindAmountOutOfRange, types.KindOf(err), "amount %d", amt)
	}
	assert.EqualValues(t, 0, f.callbackHits.Load(), "callback must not be hit")
}

func TestRequestInvoiceErrors(t *testing.T) {
	f := newFakeEndpoint(t)
	c := testClient()
	p, err := c.FetchPayParams(context.Background(), f.server.URL+"/.well-known/lnurlp/bob")
	require.NoError(t, err)

	f.callbackError = "amount too low"
	_, err = c.RequestInvoice(context.Background(), p, 50000, "", "")
	require.Error(t, err)
	assert.Equal(t, types.KindLnurlEndpoint, types.KindOf(err))
	assert.Contains(t, err.Error(), "amount too low")

	// invoice encodes a different amount than requested
	f.callbackError = ""
	f.invoice = "lnbc1u1pvjluezpp5qqq"
	_, err = c.RequestInvoice(context.Background(), p, 50000, "", "")
	assert.Equal(t, types.KindLnurlEndpoint, types.KindOf(err))
}

func TestRequiresHTTPS(t *testing.T) {
	f := newFakeEndpoint(t)
	_, err := NewClient(0, WithPrivateHosts()).FetchPayParams(context.Background(), f.server.URL+"/.well-known/lnurlp/bob")
	assert.Equal(t, types.KindLnurlEndpoint, types.KindOf(err))
}

func TestDescribe(t *testing.T) {
	c := testClient()
	_, err := c.Describe(context.Background(), resolver.BitcoinAddress{Raw: "bc1q"})
	assert.Equal(t, types.KindUnsupportedDestination, types.KindOf(err))
}

func TestFetchTarget(t *testing.T) {
	f := newFakeEndpoint(t)
	c := testClient()

	p, err := c.FetchTarget(context.Background(), " "+f.server.URL+"/.well-known/lnurlp/bob ")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, p.MinSendableMsat)

	_, err = c.FetchTarget(context.Background(), "lnbc1pvjluezpp5qqq")
	assert.Equal(t, types.KindUnsupportedDestination, types.KindOf(err))
}
