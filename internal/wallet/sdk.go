package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/types"
)

// Structured error codes reported by in-process wallet SDKs.
const (
	CodeInitFailed          = "INIT_FAILED"
	CodeAlreadyInitialized  = "ALREADY_INITIALIZED"
	CodeNotInitialized      = "NOT_INITIALIZED"
	CodeConnectionFailed    = "CONNECTION_FAILED"
	CodeNetworkError        = "NETWORK_ERROR"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeInvoiceInvalid      = "INVOICE_INVALID"
	CodeInvoiceExpired      = "INVOICE_EXPIRED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeAmountOutOfRange    = "AMOUNT_OUT_OF_RANGE"
	CodeTimeout             = "TIMEOUT"
	CodeUnknown             = "UNKNOWN"
)

// SDKError is the error type SDK implementations return.
type SDKError struct {
	Code      string
	Message   string
	Retriable bool
	Err       error
}

func (e *SDKError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *SDKError) Unwrap() error { return e.Err }

// SDKPayment is a payment as reported by an SDK.
type SDKPayment struct {
	ID          string
	Outgoing    bool
	AmountMsat  int64
	FeesMsat    int64
	Invoice     string
	Description string
	PaymentHash string
	Preimage    string
	Pending     bool
	Failed      bool
	CreatedAt   int64
}

// SDK is the external in-process wallet library. Its errors should be
// *SDKError so they can be classified.
type SDK interface {
	Connect(ctx context.Context, cfg Config) error
	Disconnect(ctx context.Context) error
	BalanceMsat(ctx context.Context) (int64, error)
	ReceivePayment(ctx context.Context, amountMsat int64, description string) (string, error)
	SendPayment(ctx context.Context, bolt11 string) (*SDKPayment, error)
	ListPayments(ctx context.Context) ([]SDKPayment, error)
}

// SDKAdapter adapts an SDK to the Adapter contract.
type SDKAdapter struct {
	sdk   SDK
	lnurl *lnurl.Client
	life  Lifecycle
}

// NewSDKAdapter wraps sdk. client performs LNURL-pay lookups.
func NewSDKAdapter(sdk SDK, client *lnurl.Client) *SDKAdapter {
	return &SDKAdapter{sdk: sdk, lnurl: client}
}

func (a *SDKAdapter) Initialize(ctx context.Context, cfg Config) error {
	return a.life.Initialize(func() error {
		err := a.sdk.Connect(ctx, cfg)
		if err != nil && sdkCode(err) == CodeAlreadyInitialized {
			slog.Debug("wallet: sdk already connected")
			return nil
		}
		return classifySDKError(err, "connect")
	})
}

func (a *SDKAdapter) GetBalance(ctx context.Context) (int64, error) {
	if err := a.life.Require("getBalance"); err != nil {
		return 0, err
	}
	msat, err := a.sdk.BalanceMsat(ctx)
	if err != nil {
		return 0, classifySDKError(err, "get balance")
	}
	return msat, nil
}

func (a *SDKAdapter) CreateInvoice(ctx context.Context, amountMsat int64, memo string) (string, error) {
	if err := a.life.Require("createInvoice"); err != nil {
		return "", err
	}
	pr, err := a.sdk.ReceivePayment(ctx, amountMsat, memo)
	if err != nil {
		return "", classifySDKError(err, "create invoice")
	}
	return pr, nil
}

func (a *SDKAdapter) SendPayment(ctx context.Context, bolt11 string) (*PayResult, error) {
	if err := a.life.Require("sendPayment"); err != nil {
		return nil, err
	}
	p, err := a.sdk.SendPayment(ctx, bolt11)
	if err != nil {
		return nil, classifySDKError(err, "send payment")
	}
	res := &PayResult{ID: p.ID, Status: StatusSuccess, Preimage: p.Preimage, FeesMsat: p.FeesMsat}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if p.Failed {
		res.Status = StatusFailed
	}
	return res, nil
}

func (a *SDKAdapter) PayLnurlPay(ctx context.Context, target string, amountMsat int64, comment, zapRequestJSON string) (*PayResult, error) {
	if err := a.life.Require("payLnurlPay"); err != nil {
		return nil, err
	}
	return PayLnurl(ctx, a.lnurl, target, amountMsat, comment, zapRequestJSON, a.SendPayment)
}

func (a *SDKAdapter) ListPayments(ctx context.Context) ([]Payment, error) {
	if err := a.life.Require("listPayments"); err != nil {
		return nil, err
	}
	list, err := a.sdk.ListPayments(ctx)
	if err != nil {
		return nil, classifySDKError(err, "list payments")
	}
	out := make([]Payment, 0, len(list))
	for _, p := range list {
		out = append(out, convertSDKPayment(p))
	}
	return out, nil
}

func (a *SDKAdapter) Disconnect(ctx context.Context) error {
	return a.life.Disconnect(func() error {
		return classifySDKError(a.sdk.Disconnect(ctx), "disconnect")
	})
}

func convertSDKPayment(p SDKPayment) Payment {
	out := Payment{
		ID:          p.ID,
		Direction:   Incoming,
		AmountMsat:  p.AmountMsat,
		FeesMsat:    p.FeesMsat,
		Invoice:     p.Invoice,
		Description: p.Description,
		PaymentHash: p.PaymentHash,
		Preimage:    p.Preimage,
		Status:      StatusSuccess,
		CreatedAt:   unixTime(p.CreatedAt),
	}
	if p.Outgoing {
		out.Direction = Outgoing
	}
	switch {
	case p.Failed:
		out.Status = StatusFailed
	case p.Pending:
		out.Status = StatusPending
	}
	return out
}

func sdkCode(err error) string {
	var se *SDKError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// classifySDKError maps an SDK error code onto the error taxonomy.
func classifySDKError(err error, op string) error {
	if err == nil {
		return nil
	}
	code := sdkCode(err)
	var kind types.ErrorKind
	switch code {
	case CodeNotInitialized, CodeInitFailed:
		kind = types.KindNotInitialized
	case CodeAlreadyInitialized:
		kind = types.KindAlreadyInitialized
	case CodeInsufficientBalance:
		kind = types.KindInsufficientBalance
	case CodeAmountOutOfRange:
		kind = types.KindAmountOutOfRange
	case CodeInvoiceInvalid:
		kind = types.KindMalformedEncoding
	case CodeConnectionFailed, CodeNetworkError, CodeTimeout:
		kind = types.KindTransportExhausted
	default:
		kind = types.KindPaymentFailed
	}
	e := types.WrapError(kind, err, "%s", op)
	e.Code = code
	return e
}

// unixTime converts seconds, leaving zero as the zero time.
func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
