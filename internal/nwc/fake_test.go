package nwc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/nostr"
	"nostr-zapwallet/internal/relay"
	"nostr-zapwallet/internal/types"
)

type behavior int

const (
	respond behavior = iota
	respondError
	silent
	refuse
	wrongRequestID
	garbageThenRespond
	noInfo
)

// fakeWalletService answers NIP-47 requests on a set of fake relays.
type fakeWalletService struct {
	secret    []byte
	pubkey    string
	sharedKey []byte
	info      string
	preimage  string
}

type fakeDialer struct {
	svc       *fakeWalletService
	behaviors map[string]behavior
	delays    map[string]time.Duration

	live  atomic.Int32
	dials atomic.Int32
	mu    sync.Mutex
	seen  map[string][]*types.Event
}

// newFixture returns a wallet service, a matching client config and a dialer.
func newFixture(t *testing.T, relays ...string) (*fakeWalletService, *Config, *fakeDialer) {
	t.Helper()
	walletSecret, err := nips.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	walletPub, _ := nips.GetPublicKey(walletSecret)
	clientSecret, _ := nips.GeneratePrivateKey()

	uri := "nostr+walletconnect://" + hex.EncodeToString(walletPub) + "?secret=" + hex.EncodeToString(clientSecret)
	for _, r := range relays {
		uri += "&relay=" + r
	}
	cfg, err := ParseURI(uri)
	if err != nil {
		t.Fatal(err)
	}

	shared, _ := nips.GetNip04SharedSecret(walletSecret, cfg.ClientPubKey)
	svc := &fakeWalletService{
		secret:    walletSecret,
		pubkey:    hex.EncodeToString(walletPub),
		sharedKey: shared,
		info:      "pay_invoice get_balance make_invoice list_transactions get_info",
		preimage:  "0000000000000000000000000000000000000000000000000000000000000001",
	}
	d := &fakeDialer{
		svc:       svc,
		behaviors: map[string]behavior{},
		delays:    map[string]time.Duration{},
		seen:      map[string][]*types.Event{},
	}
	return svc, cfg, d
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (relay.Conn, error) {
	d.dials.Add(1)
	if d.behaviors[url] == refuse {
		return nil, errors.New("connection refused")
	}
	d.live.Add(1)
	return &fakeConn{d: d, url: url, behavior: d.behaviors[url], delay: d.delays[url]}, nil
}

func (d *fakeDialer) published(url string) []*types.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[url]
}

type fakeConn struct {
	d        *fakeDialer
	url      string
	behavior behavior
	delay    time.Duration

	mu        sync.Mutex
	subs      []*relay.Subscription
	respSub   *relay.Subscription
	closeOnce sync.Once
	n         int
}

func (c *fakeConn) URL() string { return c.url }

func (c *fakeConn) Subscribe(ctx context.Context, filter types.Filter) (*relay.Subscription, error) {
	c.mu.Lock()
	c.n++
	sub := relay.NewSubscription(fmt.Sprintf("sub-%d", c.n), filter, nil)
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	switch filter.Kinds[0] {
	case types.KindNWCInfo:
		go func() {
			if c.behavior != noInfo {
				info := &types.Event{Kind: types.KindNWCInfo, CreatedAt: time.Now().Unix(), Content: c.d.svc.info}
				nostr.SignEvent(info, c.d.svc.secret)
				sub.Deliver(*info)
			}
			sub.MarkEOSE()
		}()
	case types.KindNWCResponse:
		c.mu.Lock()
		c.respSub = sub
		c.mu.Unlock()
	}
	return sub, nil
}

func (c *fakeConn) Publish(ctx context.Context, evt *types.Event) error {
	c.d.mu.Lock()
	c.d.seen[c.url] = append(c.d.seen[c.url], evt)
	c.d.mu.Unlock()

	c.mu.Lock()
	sub := c.respSub
	c.mu.Unlock()
	if sub == nil {
		return errors.New("no response subscription")
	}
	go c.answer(sub, evt)
	return nil
}

func (c *fakeConn) answer(sub *relay.Subscription, req *types.Event) {
	select {
	case <-time.After(c.delay):
	case <-sub.Done:
		return
	}
	svc := c.d.svc
	plain, err := nips.Nip04Decrypt(req.Content, svc.sharedKey)
	if err != nil {
		return
	}
	var r Request
	json.Unmarshal([]byte(plain), &r)

	switch c.behavior {
	case silent, noInfo:
		return
	case wrongRequestID:
		sub.Deliver(*svc.response(otherID(req.ID), successBody(r.Method, svc.preimage)))
		return
	case garbageThenRespond:
		bad := svc.response(req.ID, "")
		bad.Content = "not-a-ciphertext?iv=AAAA"
		nostr.SignEvent(bad, svc.secret)
		sub.Deliver(*bad)
		sub.Deliver(*svc.response(req.ID, successBody(r.Method, svc.preimage)))
	case respondError:
		sub.Deliver(*svc.response(req.ID, `{"result_type":"`+r.Method+`","error":{"code":"INSUFFICIENT_BALANCE","message":"not enough funds"}}`))
	default:
		sub.Deliver(*svc.response(req.ID, successBody(r.Method, svc.preimage)))
	}
}

func successBody(method, preimage string) string {
	var result string
	switch method {
	case MethodGetBalance:
		result = `{"balance":21000}`
	case MethodMakeInvoice:
		result = `{"type":"incoming","invoice":"lnbc210n1fake","amount":21000,"created_at":1700000000}`
	case MethodListTransactions:
		result = `{"transactions":[` +
			`{"type":"outgoing","amount":1000,"preimage":"` + preimage + `","payment_hash":"h1","created_at":1700000000,"settled_at":1700000001},` +
			`{"type":"incoming","amount":2000,"payment_hash":"h2","created_at":1700000100}]}`
	case MethodGetInfo:
		result = `{"alias":"fake","network":"regtest","methods":["pay_invoice"]}`
	default:
		result = `{"preimage":"` + preimage + `"}`
	}
	return `{"result_type":"` + method + `","result":` + result + `}`
}

func (s *fakeWalletService) response(requestID, body string) *types.Event {
	content, _ := nips.Nip04Encrypt(body, s.sharedKey)
	evt := &types.Event{
		Kind:      types.KindNWCResponse,
		CreatedAt: time.Now().Unix(),
		Tags:      [][]string{{"e", requestID}},
		Content:   content,
	}
	nostr.SignEvent(evt, s.secret)
	return evt
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.d.live.Add(-1)
		c.mu.Lock()
		subs := c.subs
		c.mu.Unlock()
		for _, s := range subs {
			s.Close()
		}
	})
	return nil
}

// otherID returns a different id of the same length.
func otherID(id string) string {
	if id[0] == '0' {
		return "1" + id[1:]
	}
	return "0" + id[1:]
}
