package wallet

import (
	"context"

	"nostr-zapwallet/internal/lnurl"
)

// PayLnurl runs both LNURL-pay steps against target (Lightning address,
// LNURL or endpoint URL) and hands the invoice to send.
func PayLnurl(ctx context.Context, client *lnurl.Client, target string, amountMsat int64, comment, zapRequestJSON string,
	send func(ctx context.Context, bolt11 string) (*PayResult, error)) (*PayResult, error) {
	params, err := client.FetchTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	pr, err := client.RequestInvoice(ctx, params, amountMsat, comment, zapRequestJSON)
	if err != nil {
		return nil, err
	}
	return send(ctx, pr)
}
