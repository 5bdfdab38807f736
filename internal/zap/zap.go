// Package zap builds and validates NIP-57 zap events and the subscription
// receipt and settings events layered on top of them.
package zap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"nostr-zapwallet/internal/bolt11"
	"nostr-zapwallet/internal/nostr"
	"nostr-zapwallet/internal/types"
)

// RequestParams describes a zap request draft.
type RequestParams struct {
	RecipientPubkey string
	AmountMsat      int64
	Relays          []string
	Comment         string
	// TargetID is the event id of a zapped note, article or stream.
	TargetID string
	// TargetATag is the "kind:pubkey:d" coordinate of a zapped addressable event.
	TargetATag string
	// Lnurl is the bech32 LNURL of the recipient, when known.
	Lnurl string
	// ExtraTags are appended unless a tag of the same name is already present.
	ExtraTags [][]string
}

// BuildZapRequest returns an unsigned kind-9734 event. The caller signs it
// with its Signer before handing the JSON to the LNURL server.
func BuildZapRequest(p RequestParams) *types.Event {
	relays := append([]string{"relays"}, p.Relays...)
	evt := &types.Event{
		Kind:      types.KindZapRequest,
		CreatedAt: time.Now().Unix(),
		Content:   p.Comment,
		Tags:      [][]string{relays},
	}
	addTag(evt, "amount", strconv.FormatInt(p.AmountMsat, 10))
	addTag(evt, "p", p.RecipientPubkey)
	if p.TargetID != "" {
		addTag(evt, "e", p.TargetID)
	}
	if p.TargetATag != "" {
		addTag(evt, "a", p.TargetATag)
	}
	if p.Lnurl != "" {
		addTag(evt, "lnurl", p.Lnurl)
	}
	for _, t := range p.ExtraTags {
		if len(t) >= 2 {
			addTag(evt, t[0], t[1:]...)
		}
	}
	return evt
}

// addTag appends a tag unless one with the same name is already present.
func addTag(evt *types.Event, name string, values ...string) {
	if types.HasTag(evt.Tags, name) {
		return
	}
	evt.Tags = append(evt.Tags, append([]string{name}, values...))
}

// EncodeRequest returns the compact JSON of a signed zap request, as sent
// in the LNURL callback's nostr parameter.
func EncodeRequest(evt *types.Event) (string, error) {
	if evt.Sig == "" {
		return "", errors.New("zap request is not signed")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Receipt is a parsed kind-9735 zap receipt.
type Receipt struct {
	Event     types.Event
	Bolt11    string
	Request   *types.Event
	Recipient string
	Sender    string
	TargetID  string
	Preimage  string
	// AmountMsat is taken from the invoice, falling back to the request's amount tag.
	AmountMsat int64
}

// ParseZapReceipt extracts the invoice and embedded zap request of evt.
func ParseZapReceipt(evt *types.Event) (*Receipt, error) {
	if evt.Kind != types.KindZapReceipt {
		return nil, fmt.Errorf("event kind %d is not a zap receipt", evt.Kind)
	}
	r := &Receipt{
		Event:     *evt,
		Bolt11:    types.TagValue(evt.Tags, "bolt11"),
		Recipient: types.TagValue(evt.Tags, "p"),
		Sender:    types.TagValue(evt.Tags, "P"),
		TargetID:  types.TagValue(evt.Tags, "e"),
		Preimage:  types.TagValue(evt.Tags, "preimage"),
	}
	if r.Bolt11 == "" {
		return nil, errors.New("zap receipt missing bolt11 tag")
	}
	desc := types.TagValue(evt.Tags, "description")
	if desc == "" {
		return nil, errors.New("zap receipt missing description tag")
	}
	var req types.Event
	if err := json.Unmarshal([]byte(desc), &req); err != nil {
		return nil, fmt.Errorf("zap receipt description is not an event: %w", err)
	}
	if req.Kind != types.KindZapRequest {
		return nil, fmt.Errorf("embedded event kind %d is not a zap request", req.Kind)
	}
	r.Request = &req
	if r.Sender == "" {
		r.Sender = req.PubKey
	}

	if msat, ok, err := bolt11.DecodeAmount(r.Bolt11); err == nil && ok {
		r.AmountMsat = msat
	} else if v, err := strconv.ParseInt(types.TagValue(req.Tags, "amount"), 10, 64); err == nil {
		r.AmountMsat = v
	}
	return r, nil
}

// ValidateOptions tightens ValidateZapReceipt.
type ValidateOptions struct {
	// ServerPubkey is the LNURL server's nostrPubkey; receipts by anyone else are rejected.
	ServerPubkey string
	// Recipient, when set, must match the receipt's p tag.
	Recipient string
	// CheckSignatures verifies the receipt and embedded request signatures.
	CheckSignatures bool
}

// ValidateZapReceipt checks a receipt against NIP-57 appendix F.
func ValidateZapReceipt(evt *types.Event, opts ValidateOptions) (*Receipt, error) {
	r, err := ParseZapReceipt(evt)
	if err != nil {
		return nil, err
	}
	if opts.ServerPubkey != "" && evt.PubKey != opts.ServerPubkey {
		return nil, errors.New("zap receipt not signed by the recipient's LNURL server")
	}
	if opts.CheckSignatures {
		if !nostr.VerifyEvent(evt) {
			return nil, errors.New("zap receipt signature invalid")
		}
		if !nostr.VerifyEvent(r.Request) {
			return nil, errors.New("zap request signature invalid")
		}
	}
	reqRecipient := types.TagValue(r.Request.Tags, "p")
	if r.Recipient == "" || reqRecipient != r.Recipient {
		return nil, errors.New("zap receipt recipient does not match request")
	}
	if opts.Recipient != "" && r.Recipient != opts.Recipient {
		return nil, errors.New("zap receipt is for another recipient")
	}
	if reqAmount := types.TagValue(r.Request.Tags, "amount"); reqAmount != "" {
		want, err := strconv.ParseInt(reqAmount, 10, 64)
		if err != nil {
			return nil, errors.New("zap request amount is not a number")
		}
		if msat, ok, err := bolt11.DecodeAmount(r.Bolt11); err == nil && ok && msat != want {
			return nil, fmt.Errorf("invoice amount %d msat does not match requested %d", msat, want)
		}
	}
	return r, nil
}

// AmountFromZap returns the zapped amount in msat: the receipt's amount
// tag, else the invoice amount, else the embedded request's amount tag.
func AmountFromZap(evt *types.Event) int64 {
	if v, err := strconv.ParseInt(types.TagValue(evt.Tags, "amount"), 10, 64); err == nil && v > 0 {
		return v
	}
	r, err := ParseZapReceipt(evt)
	if err != nil {
		return 0
	}
	return r.AmountMsat
}
