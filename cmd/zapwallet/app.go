package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"nostr-zapwallet/internal/cache"
	"nostr-zapwallet/internal/config"
	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/nostr"
	"nostr-zapwallet/internal/nwc"
	"nostr-zapwallet/internal/payment"
	"nostr-zapwallet/internal/relay"
	"nostr-zapwallet/internal/server"
	"nostr-zapwallet/internal/subscription"
	"nostr-zapwallet/internal/wallet"
)

// app is everything a command needs, built once from the configuration.
type app struct {
	cfg     *config.Config
	backend cache.CacheBackend
	lnurl   *lnurl.Client
	signer  nostr.Signer
	pubkey  string
	session *wallet.Session
	subs    *subscription.Service
	payer   *payment.Payer
}

// setupApp loads configuration and wires the engine. The wallet session
// is connected only when NWC_URI is set; otherwise it is disabled.
func setupApp(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.Bool("debug") {
		cfg.LogLevel = "debug"
	}
	server.InitLogger(cfg.LogLevel)

	ctx := c.Context
	a := &app{cfg: cfg}
	a.backend = cache.NewBackend(ctx, cfg.RedisURL, cfg.CachePrefix)

	var lnurlOpts []lnurl.Option
	if cfg.LnurlAllowInsecure {
		lnurlOpts = append(lnurlOpts, lnurl.WithInsecure())
	}
	a.lnurl = lnurl.NewClient(cfg.LnurlTimeout, lnurlOpts...)

	var dialerOpts []relay.DialerOption
	if cfg.SecretKey != "" {
		ks, err := nostr.NewKeySigner(cfg.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("NOSTR_SECRET_KEY: %w", err)
		}
		a.signer = ks
		a.pubkey, _ = ks.GetPublicKey(ctx)
		dialerOpts = append(dialerOpts, relay.WithAuthSigner(ks))
	}
	dialer := relay.NewWebsocketDialer(dialerOpts...)
	ttl := cache.DefaultCacheConfig()

	if cfg.WalletConfigured() {
		adapter := nwc.NewAdapter(dialer, a.lnurl,
			nwc.WithClientOptions(nwc.WithTimeout(cfg.NWCTimeout)),
			nwc.WithInfoCache(cache.NewStore[nwc.InfoResult](a.backend, "nwc-info"), ttl.WalletInfoTTL),
		)
		a.session, err = wallet.Connect(ctx, adapter, wallet.Config{Provider: "nwc", NWCURI: cfg.NWCURI},
			wallet.WithWalletLogs(cfg.WalletLogs))
		if err != nil {
			return nil, err
		}
	} else {
		slog.Debug("no NWC_URI configured, wallet disabled")
		a.session = wallet.Disabled()
	}

	a.subs = subscription.NewService(subscription.Config{
		Pool:   relay.NewPool(dialer),
		Relays: cfg.Relays,
		Signer: a.signer,
		Lnurl:  a.lnurl,
		Cache:  a.backend,
		TTL:    ttl,
	})

	payerOpts := []payment.Option{payment.WithSubscriptions(a.subs), payment.WithZapRelays(cfg.Relays)}
	if a.signer != nil {
		payerOpts = append(payerOpts, payment.WithSigner(a.signer))
	}
	a.payer = payment.NewPayer(a.session, a.lnurl, payerOpts...)
	return a, nil
}

// close disconnects the wallet and releases the cache backend.
func (a *app) close(ctx context.Context) {
	if err := a.session.Disconnect(ctx); err != nil && err != wallet.ErrDisabled {
		slog.Debug("wallet disconnect failed", "error", err)
	}
	if err := a.backend.Close(); err != nil {
		slog.Debug("cache close failed", "error", err)
	}
}

// withApp wraps an action with setup and teardown.
func withApp(fn func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := setupApp(c)
		if err != nil {
			return err
		}
		defer a.close(context.Background())
		return fn(c, a)
	}
}
