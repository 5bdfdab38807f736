// Package resolver classifies free-form payment input into a typed
// destination. Classification never fails: unrecognised input becomes an
// Unsupported destination carrying the reason.
package resolver

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind names a destination variant.
type Kind string

const (
	KindBolt11Invoice    Kind = "bolt11"
	KindLightningAddress Kind = "lightning_address"
	KindLnurlPay         Kind = "lnurl_pay"
	KindBitcoinAddress   Kind = "bitcoin_address"
	KindNodeID           Kind = "node_id"
	KindUnsupported      Kind = "unsupported"
)

// Destination is one of the concrete variants below. Values are immutable
// once returned by Resolve.
type Destination interface {
	Kind() Kind
	// Input is the normalised string the destination was classified from.
	Input() string
}

// Bolt11Invoice is a Lightning invoice. AmountMsat is set when the invoice
// encodes an amount; otherwise the caller must supply one.
type Bolt11Invoice struct {
	Raw        string
	Network    string
	AmountMsat int64
	HasAmount  bool
}

func (d Bolt11Invoice) Kind() Kind    { return KindBolt11Invoice }
func (d Bolt11Invoice) Input() string { return d.Raw }

// LightningAddress is a LUD-16 user@domain identifier.
type LightningAddress struct {
	User   string
	Domain string
}

func (d LightningAddress) Kind() Kind     { return KindLightningAddress }
func (d LightningAddress) Input() string  { return d.String() }
func (d LightningAddress) String() string { return d.User + "@" + d.Domain }

// URL is the LUD-16 well-known endpoint. Onion domains are served over http.
func (d LightningAddress) URL() string {
	scheme := "https"
	if strings.HasSuffix(d.Domain, ".onion") {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", scheme, d.Domain, url.PathEscape(d.User))
}

// LnurlPay is an LNURL-pay endpoint. The bounds are zero until the endpoint
// has been fetched; see lnurl.Client.Describe.
type LnurlPay struct {
	Raw            string
	CallbackURL    string
	MinMsat        int64
	MaxMsat        int64
	CommentAllowed int
}

func (d LnurlPay) Kind() Kind    { return KindLnurlPay }
func (d LnurlPay) Input() string { return d.Raw }

// BitcoinAddress is an on-chain address. Recognised but not payable here.
type BitcoinAddress struct {
	Raw string
}

func (d BitcoinAddress) Kind() Kind    { return KindBitcoinAddress }
func (d BitcoinAddress) Input() string { return d.Raw }

// NodeID is a compressed node public key (keysend target).
type NodeID struct {
	Raw string
}

func (d NodeID) Kind() Kind    { return KindNodeID }
func (d NodeID) Input() string { return d.Raw }

// Unsupported is any input that matched no known shape. Err explains why
// when a known shape was recognised but malformed.
type Unsupported struct {
	Raw string
	Err error
}

func (d Unsupported) Kind() Kind    { return KindUnsupported }
func (d Unsupported) Input() string { return d.Raw }
