package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the payment engine. Callers branch on the
// kind, never on message text.
type ErrorKind string

const (
	KindMalformedEncoding      ErrorKind = "MALFORMED_ENCODING"
	KindUnsupportedDestination ErrorKind = "UNSUPPORTED_DESTINATION"
	KindLnurlEndpoint          ErrorKind = "LNURL_ENDPOINT_ERROR"
	KindAmountOutOfRange       ErrorKind = "AMOUNT_OUT_OF_RANGE"
	KindNotInitialized         ErrorKind = "NOT_INITIALIZED"
	KindAlreadyInitialized     ErrorKind = "ALREADY_INITIALIZED"
	KindTransportExhausted     ErrorKind = "TRANSPORT_EXHAUSTED"
	KindRemoteWallet           ErrorKind = "REMOTE_WALLET_ERROR"
	KindInsufficientBalance    ErrorKind = "INSUFFICIENT_BALANCE"
	KindPaymentFailed          ErrorKind = "PAYMENT_FAILED"
	KindUnsupportedOperation   ErrorKind = "UNSUPPORTED_OPERATION"
)

// NIP-47 error codes returned by wallet services.
const (
	NWCErrorRateLimited         = "RATE_LIMITED"
	NWCErrorNotImplemented      = "NOT_IMPLEMENTED"
	NWCErrorInsufficientBalance = "INSUFFICIENT_BALANCE"
	NWCErrorQuotaExceeded       = "QUOTA_EXCEEDED"
	NWCErrorRestricted          = "RESTRICTED"
	NWCErrorUnauthorized        = "UNAUTHORIZED"
	NWCErrorInternal            = "INTERNAL"
	NWCErrorOther               = "OTHER"
	NWCErrorPaymentFailed       = "PAYMENT_FAILED"
	NWCErrorNotFound            = "NOT_FOUND"
)

// Error is the typed error carried through every layer of the engine.
// Code holds a backend-specific code (for example a NIP-47 error code).
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrMalformedEncoding      = &Error{Kind: KindMalformedEncoding}
	ErrUnsupportedDestination = &Error{Kind: KindUnsupportedDestination}
	ErrLnurlEndpoint          = &Error{Kind: KindLnurlEndpoint}
	ErrAmountOutOfRange       = &Error{Kind: KindAmountOutOfRange}
	ErrNotInitialized         = &Error{Kind: KindNotInitialized}
	ErrAlreadyInitialized     = &Error{Kind: KindAlreadyInitialized}
	ErrTransportExhausted     = &Error{Kind: KindTransportExhausted}
	ErrRemoteWallet           = &Error{Kind: KindRemoteWallet}
	ErrInsufficientBalance    = &Error{Kind: KindInsufficientBalance}
	ErrPaymentFailed          = &Error{Kind: KindPaymentFailed}
	ErrUnsupportedOperation   = &Error{Kind: KindUnsupportedOperation}
)

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error around an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the backend code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInsufficientBalance reports a balance failure whether it came from an
// in-process wallet or as a NIP-47 code from a remote one.
func IsInsufficientBalance(err error) bool {
	switch KindOf(err) {
	case KindInsufficientBalance:
		return true
	case KindRemoteWallet:
		return CodeOf(err) == NWCErrorInsufficientBalance
	}
	return false
}
