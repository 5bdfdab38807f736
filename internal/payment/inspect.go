package payment

import (
	"context"

	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/resolver"
	"nostr-zapwallet/internal/types"
)

// Inspection is a printable view of a classified destination. LNURL bounds
// are filled only when the endpoint was fetched.
type Inspection struct {
	Kind           resolver.Kind   `json:"kind"`
	Input          string          `json:"input"`
	Network        string          `json:"network,omitempty"`
	AmountMsat     int64           `json:"amount_msat,omitempty"`
	Endpoint       string          `json:"endpoint,omitempty"`
	Callback       string          `json:"callback,omitempty"`
	MinMsat        int64           `json:"min_msat,omitempty"`
	MaxMsat        int64           `json:"max_msat,omitempty"`
	CommentAllowed int             `json:"comment_allowed,omitempty"`
	AllowsNostr    bool            `json:"allows_nostr,omitempty"`
	Description    string          `json:"description,omitempty"`
	ErrorKind      types.ErrorKind `json:"error_kind,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Inspect classifies input and, when client is non-nil and the
// destination is an LNURL-pay endpoint, fetches its pay params.
func Inspect(ctx context.Context, client *lnurl.Client, input string) Inspection {
	dest := resolver.Resolve(input)
	in := Inspection{Kind: dest.Kind(), Input: dest.Input()}

	switch d := dest.(type) {
	case resolver.Bolt11Invoice:
		in.Network = d.Network
		in.AmountMsat = d.AmountMsat
	case resolver.LightningAddress:
		in.Endpoint = d.URL()
	case resolver.LnurlPay:
		in.Endpoint = d.CallbackURL
	case resolver.Unsupported:
		if d.Err != nil {
			in.ErrorKind = types.KindOf(d.Err)
			in.Error = d.Err.Error()
		}
	}

	if client == nil || in.Endpoint == "" {
		return in
	}
	params, err := client.Describe(ctx, dest)
	if err != nil {
		in.ErrorKind = types.KindOf(err)
		in.Error = err.Error()
		return in
	}
	in.Callback = params.Callback
	in.MinMsat = params.MinSendableMsat
	in.MaxMsat = params.MaxSendableMsat
	in.CommentAllowed = params.CommentAllowed
	in.AllowsNostr = params.SupportsZaps()
	in.Description = params.Description()
	return in
}
