// Package lnurl is the LNURL-pay (LUD-06, LUD-16) client: one GET to fetch
// the payment bounds, one GET to obtain an invoice.
package lnurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"nostr-zapwallet/internal/bolt11"
	"nostr-zapwallet/internal/resolver"
	"nostr-zapwallet/internal/types"
	"nostr-zapwallet/internal/util"
)

const (
	// DefaultHTTPTimeout bounds each LNURL round trip.
	DefaultHTTPTimeout = 10 * time.Second

	maxBodySize = 1 << 20
)

// PayParams is the first-step LNURL-pay response.
type PayParams struct {
	Callback        string `json:"callback"`
	MinSendableMsat int64  `json:"minSendable"`
	MaxSendableMsat int64  `json:"maxSendable"`
	Metadata        string `json:"metadata"`
	Tag             string `json:"tag"`
	CommentAllowed  int    `json:"commentAllowed"`
	AllowsNostr     bool   `json:"allowsNostr"`
	NostrPubkey     string `json:"nostrPubkey"`
}

// SupportsZaps reports whether invoices requested from this endpoint may carry
// a NIP-57 zap request.
func (p *PayParams) SupportsZaps() bool {
	return p.AllowsNostr && p.NostrPubkey != ""
}

// Description returns the text/plain entry of the metadata, if any.
func (p *PayParams) Description() string {
	var entries [][]interface{}
	if err := json.Unmarshal([]byte(p.Metadata), &entries); err != nil {
		return ""
	}
	for _, e := range entries {
		if len(e) >= 2 {
			if k, _ := e[0].(string); k == "text/plain" {
				v, _ := e[1].(string)
				return v
			}
		}
	}
	return ""
}

// Destination converts the params into a resolved LnurlPay destination.
func (p *PayParams) Destination(raw string) resolver.LnurlPay {
	return resolver.LnurlPay{
		Raw:            raw,
		CallbackURL:    p.Callback,
		MinMsat:        p.MinSendableMsat,
		MaxMsat:        p.MaxSendableMsat,
		CommentAllowed: p.CommentAllowed,
	}
}

type payResponse struct {
	PR     string `json:"pr"`
	Routes []any  `json:"routes"`
}

type errorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Client performs LNURL-pay requests.
type Client struct {
	http              *http.Client
	allowPrivateHosts bool
	allowInsecure     bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithPrivateHosts disables the SSRF guard (tests and local development).
func WithPrivateHosts() Option {
	return func(cl *Client) { cl.allowPrivateHosts = true }
}

// WithInsecure permits plain http endpoints on clearnet hosts.
func WithInsecure() Option {
	return func(cl *Client) { cl.allowInsecure = true }
}

// NewClient creates a client with a dedicated HTTP transport.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	c := &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          10,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 5 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateExternalURL validates that a URL is safe to fetch (SSRF prevention)
func ValidateExternalURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("invalid scheme: %s (expected https)", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return errors.New("missing host")
	}
	if util.IsPrivateHost(host) && !isOnion(host) {
		return errors.New("internal hosts not allowed")
	}
	return nil
}

func isOnion(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), ".onion")
}

func (c *Client) checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return errors.New("invalid URL")
	}
	if u.Scheme == "http" && !c.allowInsecure && !isOnion(u.Hostname()) {
		return errors.New("https required")
	}
	if c.allowPrivateHosts {
		return nil
	}
	return ValidateExternalURL(rawURL)
}

// FetchPayParams performs the first LNURL-pay step against endpoint.
func (c *Client) FetchPayParams(ctx context.Context, endpoint string) (*PayParams, error) {
	if err := c.checkURL(endpoint); err != nil {
		return nil, types.WrapError(types.KindLnurlEndpoint, err, "refusing to fetch %s", endpoint)
	}

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var params PayParams
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, types.WrapError(types.KindLnurlEndpoint, err, "failed to parse pay params")
	}
	if params.Tag != "payRequest" {
		return nil, types.NewError(types.KindLnurlEndpoint, "unexpected lnurl tag %q (expected payRequest)", params.Tag)
	}
	if params.Callback == "" {
		return nil, types.NewError(types.KindLnurlEndpoint, "lnurl missing callback")
	}
	if params.MinSendableMsat <= 0 || params.MaxSendableMsat < params.MinSendableMsat {
		return nil, types.NewError(types.KindLnurlEndpoint, "invalid sendable range [%d, %d]", params.MinSendableMsat, params.MaxSendableMsat)
	}

	slog.Debug("LNURL: fetched pay params", "endpoint", endpoint,
		"min_msat", params.MinSendableMsat, "max_msat", params.MaxSendableMsat,
		"comment_allowed", params.CommentAllowed, "allows_nostr", params.AllowsNostr)
	return &params, nil
}

// ResolveAddress fetches the pay params of the Lightning address user@domain.
func (c *Client) ResolveAddress(ctx context.Context, user, domain string) (*PayParams, error) {
	addr := resolver.LightningAddress{User: user, Domain: domain}
	return c.FetchPayParams(ctx, addr.URL())
}

// FetchTarget accepts a Lightning address, a bech32 LNURL or a plain
// http(s) LNURL-pay endpoint and returns its pay params.
func (c *Client) FetchTarget(ctx context.Context, target string) (*PayParams, error) {
	target = strings.TrimSpace(target)
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return c.FetchPayParams(ctx, target)
	}
	return c.Describe(ctx, resolver.Resolve(target))
}

// Describe fetches the pay params behind a LightningAddress or LnurlPay
// destination.
func (c *Client) Describe(ctx context.Context, dest resolver.Destination) (*PayParams, error) {
	endpoint, ok := EndpointURL(dest)
	if !ok {
		return nil, types.NewError(types.KindUnsupportedDestination, "%s destinations have no LNURL endpoint", dest.Kind())
	}
	return c.FetchPayParams(ctx, endpoint)
}

// EndpointURL is the first-step LNURL-pay URL of a Lightning address or
// LNURL destination.
func EndpointURL(dest resolver.Destination) (string, bool) {
	switch d := dest.(type) {
	case resolver.LightningAddress:
		return d.URL(), true
	case resolver.LnurlPay:
		return d.CallbackURL, true
	}
	return "", false
}

// RequestInvoice performs the second LNURL-pay step. The amount is checked
// against the advertised bounds before any request is made. comment is sent
// only if non-empty and within commentAllowed; zapRequestJSON only if the
// endpoint supports zaps.
func (c *Client) RequestInvoice(ctx context.Context, params *PayParams, amountMsat int64, comment, zapRequestJSON string) (string, error) {
	if amountMsat < params.MinSendableMsat || amountMsat > params.MaxSendableMsat {
		return "", types.NewError(types.KindAmountOutOfRange,
			"amount %d msat outside [%d, %d]", amountMsat, params.MinSendableMsat, params.MaxSendableMsat)
	}
	if err := c.checkURL(params.Callback); err != nil {
		return "", types.WrapError(types.KindLnurlEndpoint, err, "invalid callback URL")
	}

	callbackURL, err := url.Parse(params.Callback)
	if err != nil {
		return "", types.WrapError(types.KindLnurlEndpoint, err, "invalid callback URL")
	}
	query := callbackURL.Query()
	query.Set("amount", strconv.FormatInt(amountMsat, 10))
	if comment != "" && utf8.RuneCountInString(comment) <= params.CommentAllowed {
		query.Set("comment", comment)
	}
	if zapRequestJSON != "" && params.SupportsZaps() {
		query.Set("nostr", zapRequestJSON)
	}
	callbackURL.RawQuery = query.Encode()

	body, err := c.get(ctx, callbackURL.String())
	if err != nil {
		return "", err
	}

	var resp payResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", types.WrapError(types.KindLnurlEndpoint, err, "failed to parse callback response")
	}
	if resp.PR == "" {
		return "", types.NewError(types.KindLnurlEndpoint, "callback returned empty invoice")
	}

	if msat, ok, err := bolt11.DecodeAmount(resp.PR); err == nil && ok && msat != amountMsat {
		return "", types.NewError(types.KindLnurlEndpoint, "invoice amount %d msat does not match requested %d", msat, amountMsat)
	}
	return resp.PR, nil
}

// get performs a GET and surfaces LNURL error payloads. Non-2xx responses
// are endpoint errors, with the reason when the body carries one.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, types.WrapError(types.KindLnurlEndpoint, err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, types.WrapError(types.KindLnurlEndpoint, err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, types.WrapError(types.KindLnurlEndpoint, err, "failed to read response")
	}

	var lnErr errorResponse
	if json.Unmarshal(body, &lnErr) == nil && lnErr.Status == "ERROR" {
		return nil, types.NewError(types.KindLnurlEndpoint, "%s", lnErr.Reason)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, types.NewError(types.KindLnurlEndpoint, "endpoint returned status %d", resp.StatusCode)
	}
	return body, nil
}

// MsatsToSats converts millisatoshis to satoshis (rounds down)
func MsatsToSats(msats int64) int64 {
	return msats / 1000
}
