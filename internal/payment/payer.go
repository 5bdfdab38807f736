// Package payment runs one payment attempt end to end: classify the
// destination, fetch an invoice when the destination is an LNURL-pay
// endpoint, pay it through the wallet session and optionally publish a
// subscription receipt.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/nostr"
	"nostr-zapwallet/internal/resolver"
	"nostr-zapwallet/internal/subscription"
	"nostr-zapwallet/internal/types"
	"nostr-zapwallet/internal/wallet"
	"nostr-zapwallet/internal/zap"
)

// Status is the final state of an attempt.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusDisabled Status = "disabled"
)

// ZapTarget turns an LNURL payment into a NIP-57 zap.
type ZapTarget struct {
	RecipientPubkey string `json:"recipient_pubkey"`
	EventID         string `json:"event_id,omitempty"`
	ATag            string `json:"a_tag,omitempty"`
}

// SubscriptionTarget publishes a receipt for Creator after a successful
// payment.
type SubscriptionTarget struct {
	Creator string `json:"creator"`
	Months  int    `json:"months"`
}

// Request is one payment attempt.
type Request struct {
	Destination string
	// AmountMsat is required for LNURL destinations and amountless
	// invoices. For invoices that carry an amount it must be zero or equal
	// to it.
	AmountMsat   int64
	Comment      string
	Zap          *ZapTarget
	Subscription *SubscriptionTarget
}

// Outcome reports how an attempt ended. Failed outcomes carry the error
// kind and, for remote wallet errors, the backend code.
type Outcome struct {
	Status      Status            `json:"status"`
	Destination resolver.Kind     `json:"destination,omitempty"`
	AmountMsat  int64             `json:"amount_msat,omitempty"`
	Payment     *wallet.PayResult `json:"payment,omitempty"`
	ZapRequest  *types.Event      `json:"zap_request,omitempty"`
	Receipt     *types.Event      `json:"receipt,omitempty"`
	// ReceiptError is set when the payment went through but the receipt
	// could not be published.
	ReceiptError string          `json:"receipt_error,omitempty"`
	Kind         types.ErrorKind `json:"error_kind,omitempty"`
	Code         string          `json:"error_code,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Err          error           `json:"-"`

	amountless bool
}

// Payer wires the session to the LNURL client and, optionally, a signer
// for zap requests and a subscription service for receipts.
type Payer struct {
	session *wallet.Session
	lnurl   *lnurl.Client
	signer  nostr.Signer
	subs    *subscription.Service
	relays  []string
}

// Option configures a Payer.
type Option func(*Payer)

// WithSigner signs zap requests.
func WithSigner(s nostr.Signer) Option {
	return func(p *Payer) { p.signer = s }
}

// WithSubscriptions publishes subscription receipts through svc.
func WithSubscriptions(svc *subscription.Service) Option {
	return func(p *Payer) { p.subs = svc }
}

// WithZapRelays sets the relays listed in zap requests, where the LNURL
// server publishes the receipt.
func WithZapRelays(relays []string) Option {
	return func(p *Payer) { p.relays = relays }
}

// NewPayer creates a Payer. A nil session behaves like wallet.Disabled().
func NewPayer(session *wallet.Session, client *lnurl.Client, opts ...Option) *Payer {
	if session == nil {
		session = wallet.Disabled()
	}
	p := &Payer{session: session, lnurl: client}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pay runs one attempt. It never returns an empty outcome.
func (p *Payer) Pay(ctx context.Context, req Request) Outcome {
	if p.session.State().Disabled {
		return Outcome{Status: StatusDisabled, Reason: "no wallet configured"}
	}

	dest := resolver.Resolve(req.Destination)
	out := Outcome{Destination: dest.Kind(), AmountMsat: req.AmountMsat}

	if req.Zap != nil {
		target := *req.Zap
		if err := target.Normalize(); err != nil {
			return failed(out, err)
		}
		req.Zap = &target
	}
	if req.Subscription != nil {
		creator, err := nips.DecodePubkey(req.Subscription.Creator)
		if err != nil {
			return failed(out, types.WrapError(types.KindMalformedEncoding, err, "subscription creator"))
		}
		req.Subscription = &SubscriptionTarget{Creator: creator, Months: req.Subscription.Months}
	}

	bolt11, err := p.invoiceFor(ctx, dest, req, &out)
	if err != nil {
		return failed(out, err)
	}

	var res *wallet.PayResult
	if out.amountless {
		res, err = p.session.SendBolt11Amount(ctx, bolt11, out.AmountMsat)
	} else {
		res, err = p.session.SendBolt11(ctx, bolt11)
	}
	if err != nil {
		return failed(out, err)
	}
	out.Payment = res
	if res.Status != wallet.StatusSuccess {
		return failed(out, types.NewError(types.KindPaymentFailed, "payment %s", res.Status))
	}
	out.Status = StatusSuccess

	if req.Subscription != nil && p.subs != nil {
		receipt, err := p.subs.PublishReceipt(ctx, req.Subscription.Creator, req.Subscription.Months,
			lnurl.MsatsToSats(out.AmountMsat), paymentHash(res.Preimage))
		if err != nil {
			slog.Warn("payment: receipt publish failed", "creator", types.ShortID(req.Subscription.Creator), "error", err)
			out.ReceiptError = err.Error()
		} else {
			out.Receipt = receipt
		}
	}
	return out
}

// invoiceFor returns the BOLT11 invoice to pay for dest and records the
// settled amount on out.
func (p *Payer) invoiceFor(ctx context.Context, dest resolver.Destination, req Request, out *Outcome) (string, error) {
	switch d := dest.(type) {
	case resolver.Bolt11Invoice:
		if !d.HasAmount {
			if req.AmountMsat <= 0 {
				return "", types.NewError(types.KindAmountOutOfRange, "invoice carries no amount")
			}
			out.amountless = true
			return d.Raw, nil
		}
		if req.AmountMsat != 0 && req.AmountMsat != d.AmountMsat {
			return "", types.NewError(types.KindAmountOutOfRange,
				"invoice is for %d msat, not %d", d.AmountMsat, req.AmountMsat)
		}
		out.AmountMsat = d.AmountMsat
		return d.Raw, nil

	case resolver.LightningAddress, resolver.LnurlPay:
		if req.AmountMsat <= 0 {
			return "", types.NewError(types.KindAmountOutOfRange, "amount required")
		}
		if p.lnurl == nil {
			return "", types.NewError(types.KindNotInitialized, "no LNURL client configured")
		}
		params, err := p.lnurl.Describe(ctx, d)
		if err != nil {
			return "", err
		}
		zapJSON := ""
		if req.Zap != nil && params.SupportsZaps() {
			endpoint, _ := lnurl.EndpointURL(d)
			evt, encoded, err := p.zapRequest(ctx, req, endpoint)
			if err != nil {
				return "", err
			}
			out.ZapRequest = evt
			zapJSON = encoded
		}
		return p.lnurl.RequestInvoice(ctx, params, req.AmountMsat, req.Comment, zapJSON)

	case resolver.Unsupported:
		if d.Err != nil {
			return "", d.Err
		}
	}
	return "", types.NewError(types.KindUnsupportedDestination, "cannot pay %s destination", dest.Kind())
}

// zapRequest signs the kind-9734 request. The lnurl tag carries the
// recipient's pay endpoint, not the invoice callback.
func (p *Payer) zapRequest(ctx context.Context, req Request, endpoint string) (*types.Event, string, error) {
	if p.signer == nil {
		return nil, "", types.NewError(types.KindNotInitialized, "no signing key for zap request")
	}
	lnurlTag, _ := nips.EncodeLNURL(endpoint)
	evt := zap.BuildZapRequest(zap.RequestParams{
		RecipientPubkey: req.Zap.RecipientPubkey,
		AmountMsat:      req.AmountMsat,
		Relays:          p.relays,
		Comment:         req.Comment,
		TargetID:        req.Zap.EventID,
		TargetATag:      req.Zap.ATag,
		Lnurl:           lnurlTag,
	})
	if err := p.signer.SignEvent(ctx, evt); err != nil {
		return nil, "", err
	}
	encoded, err := zap.EncodeRequest(evt)
	if err != nil {
		return nil, "", err
	}
	return evt, encoded, nil
}

func failed(out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	out.Kind = types.KindOf(err)
	if out.Kind == "" {
		out.Kind = types.KindPaymentFailed
	}
	out.Code = types.CodeOf(err)
	out.Reason = err.Error()
	if err == wallet.ErrDisabled {
		out.Status = StatusDisabled
	}
	return out
}

// paymentHash is sha256 of the hex preimage, or "" without one.
func paymentHash(preimage string) string {
	raw, err := hex.DecodeString(preimage)
	if err != nil || len(raw) == 0 {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
