package nwc

import (
	"context"
	"log/slog"

	"nostr-zapwallet/internal/types"
)

// NIP-47 method names.
const (
	MethodPayInvoice       = "pay_invoice"
	MethodGetBalance       = "get_balance"
	MethodMakeInvoice      = "make_invoice"
	MethodListTransactions = "list_transactions"
	MethodGetInfo          = "get_info"
)

// PayInvoiceParams are the parameters for pay_invoice method
type PayInvoiceParams struct {
	Invoice string `json:"invoice"`
	Amount  int64  `json:"amount,omitempty"` // msat, for zero-amount invoices
}

// PayInvoiceResult is the result of a successful payment
type PayInvoiceResult struct {
	Preimage string `json:"preimage"`
	FeesPaid int64  `json:"fees_paid,omitempty"`
}

// BalanceResult is the result of get_balance
type BalanceResult struct {
	Balance int64 `json:"balance"` // millisatoshis
}

// MakeInvoiceParams are the parameters for make_invoice
type MakeInvoiceParams struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
	Expiry      int64  `json:"expiry,omitempty"`
}

// Transaction represents a single transaction from list_transactions
type Transaction struct {
	Type            string `json:"type"`                       // "incoming" or "outgoing"
	Invoice         string `json:"invoice,omitempty"`          // BOLT11 invoice
	Description     string `json:"description,omitempty"`      // Payment description
	DescriptionHash string `json:"description_hash,omitempty"` // Hash of description
	Preimage        string `json:"preimage,omitempty"`         // Payment preimage
	PaymentHash     string `json:"payment_hash,omitempty"`     // Payment hash
	Amount          int64  `json:"amount"`                     // Amount in millisatoshis
	FeesPaid        int64  `json:"fees_paid,omitempty"`        // Fees in millisatoshis
	CreatedAt       int64  `json:"created_at"`                 // Unix timestamp
	SettledAt       int64  `json:"settled_at,omitempty"`       // Unix timestamp when settled
}

// ListTransactionsParams are the parameters for list_transactions
type ListTransactionsParams struct {
	Limit  int   `json:"limit,omitempty"`
	Offset int   `json:"offset,omitempty"`
	From   int64 `json:"from,omitempty"`
	Until  int64 `json:"until,omitempty"`
}

// ListTransactionsResult is the result of list_transactions
type ListTransactionsResult struct {
	Transactions []Transaction `json:"transactions"`
}

// InfoResult is the result of get_info
type InfoResult struct {
	Alias   string   `json:"alias"`
	Network string   `json:"network"`
	Pubkey  string   `json:"pubkey"`
	Methods []string `json:"methods"`
}

// PayInvoice sends a payment request to the wallet
func (c *Client) PayInvoice(ctx context.Context, bolt11Invoice string) (*PayInvoiceResult, error) {
	return c.PayInvoiceAmount(ctx, bolt11Invoice, 0)
}

// PayInvoiceAmount is PayInvoice with an explicit amount for invoices that
// carry none. A zero amount is omitted from the request.
func (c *Client) PayInvoiceAmount(ctx context.Context, bolt11Invoice string, amountMsat int64) (*PayInvoiceResult, error) {
	slog.Debug("NWC: PayInvoice called", "invoice_len", len(bolt11Invoice), "amount_msat", amountMsat)
	var result PayInvoiceResult
	params := PayInvoiceParams{Invoice: bolt11Invoice, Amount: amountMsat}
	if err := c.Do(ctx, MethodPayInvoice, params, &result); err != nil {
		return nil, err
	}
	slog.Debug("NWC: payment successful", "preimage", types.ShortID(result.Preimage))
	return &result, nil
}

// GetBalance queries the wallet balance
func (c *Client) GetBalance(ctx context.Context) (*BalanceResult, error) {
	var result BalanceResult
	if err := c.Do(ctx, MethodGetBalance, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MakeInvoice asks the wallet for an invoice of amountMsat.
func (c *Client) MakeInvoice(ctx context.Context, amountMsat int64, description string) (*Transaction, error) {
	var result Transaction
	params := MakeInvoiceParams{Amount: amountMsat, Description: description}
	if err := c.Do(ctx, MethodMakeInvoice, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTransactions retrieves recent transactions from the wallet
func (c *Client) ListTransactions(ctx context.Context, limit int) (*ListTransactionsResult, error) {
	var result ListTransactionsResult
	if err := c.Do(ctx, MethodListTransactions, ListTransactionsParams{Limit: limit}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetInfo returns the wallet's self-description.
func (c *Client) GetInfo(ctx context.Context) (*InfoResult, error) {
	var result InfoResult
	if err := c.Do(ctx, MethodGetInfo, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsRetryableError reports NIP-47 codes worth retrying at a higher level.
// This client never retries on its own.
func IsRetryableError(err error) bool {
	switch types.KindOf(err) {
	case types.KindTransportExhausted:
		return true
	case types.KindRemoteWallet:
		code := types.CodeOf(err)
		return code == types.NWCErrorRateLimited || code == types.NWCErrorInternal
	}
	return false
}
