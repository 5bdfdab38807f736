// Package bolt11 reads the human-readable part of BOLT11 invoices: network
// prefix and the optional encoded amount. Signature and tagged fields are not
// decoded.
package bolt11

import (
	"strings"

	"github.com/shopspring/decimal"

	"nostr-zapwallet/internal/types"
)

// Network prefixes, longest first so lnbcrt wins over lnbc.
var networks = []struct {
	prefix string
	name   string
}{
	{"lnbcrt", "regtest"},
	{"lntbs", "signet"},
	{"lntb", "testnet"},
	{"lnsb", "simnet"},
	{"lnbc", "mainnet"},
}

// msat per BTC
var msatPerBTC = decimal.New(1, 11)

// maxMsat is the 21M BTC supply cap.
var maxMsat = decimal.New(21, 6).Mul(msatPerBTC)

var multipliers = map[byte]decimal.Decimal{
	'm': decimal.New(1, -3),
	'u': decimal.New(1, -6),
	'n': decimal.New(1, -9),
	'p': decimal.New(1, -12),
}

// Invoice is the information recoverable from the invoice prefix.
type Invoice struct {
	Raw        string
	Network    string
	AmountMsat int64
	HasAmount  bool
}

// Network returns the network name for an invoice, or "" if the prefix is unknown.
func Network(invoice string) string {
	lower := strings.ToLower(strings.TrimSpace(invoice))
	for _, n := range networks {
		if strings.HasPrefix(lower, n.prefix) {
			return n.name
		}
	}
	return ""
}

// Decode parses the prefix of an invoice.
func Decode(invoice string) (*Invoice, error) {
	raw := strings.TrimSpace(invoice)
	lower := strings.ToLower(raw)

	sep := strings.LastIndexByte(lower, '1')
	if sep < 0 {
		return nil, types.NewError(types.KindMalformedEncoding, "invoice has no bech32 separator")
	}
	hrp := lower[:sep]

	var network, prefix string
	for _, n := range networks {
		if strings.HasPrefix(hrp, n.prefix) {
			network, prefix = n.name, n.prefix
			break
		}
	}
	if network == "" {
		return nil, types.NewError(types.KindMalformedEncoding, "unknown invoice prefix")
	}

	inv := &Invoice{Raw: raw, Network: network}
	amountPart := hrp[len(prefix):]
	if amountPart == "" {
		return inv, nil
	}

	msat, err := parseAmount(amountPart)
	if err != nil {
		return nil, err
	}
	inv.AmountMsat = msat
	inv.HasAmount = true
	return inv, nil
}

// DecodeAmount returns the encoded amount in millisatoshis. ok is false when
// the invoice carries no amount.
func DecodeAmount(invoice string) (msat int64, ok bool, err error) {
	inv, err := Decode(invoice)
	if err != nil {
		return 0, false, err
	}
	return inv.AmountMsat, inv.HasAmount, nil
}

func parseAmount(s string) (int64, error) {
	digits := s
	mult := decimal.NewFromInt(1)
	if m, ok := multipliers[s[len(s)-1]]; ok {
		digits = s[:len(s)-1]
		mult = m
	}
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, types.NewError(types.KindMalformedEncoding, "invalid invoice amount %q", s)
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, types.NewError(types.KindMalformedEncoding, "invoice amount has leading zero")
	}

	n, err := decimal.NewFromString(digits)
	if err != nil {
		return 0, types.WrapError(types.KindMalformedEncoding, err, "invalid invoice amount")
	}
	msat := n.Mul(mult).Mul(msatPerBTC)
	if !msat.Equal(msat.Truncate(0)) {
		return 0, types.NewError(types.KindMalformedEncoding, "invoice amount is not a whole millisatoshi")
	}
	if !msat.IsPositive() {
		return 0, types.NewError(types.KindMalformedEncoding, "invoice amount must be positive")
	}
	if msat.GreaterThan(maxMsat) {
		return 0, types.NewError(types.KindMalformedEncoding, "invoice amount exceeds the bitcoin supply")
	}
	return msat.IntPart(), nil
}
