package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"

	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/payment"
	"nostr-zapwallet/internal/server"
	"nostr-zapwallet/internal/zap"
)

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "Classify a payment destination",
	ArgsUsage: "<destination>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "describe",
			Usage: "fetch LNURL-pay bounds for Lightning addresses and LNURLs",
		},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected exactly one destination")
		}
		client := a.lnurl
		if !c.Bool("describe") {
			client = nil
		}
		return printJSON(payment.Inspect(c.Context, client, c.Args().First()))
	}),
}

var amountFlag = &cli.Int64Flag{
	Name:  "amount",
	Usage: "amount in sats (required for Lightning addresses and LNURLs)",
}

var commentFlag = &cli.StringFlag{
	Name:  "comment",
	Usage: "payer comment, sent when the endpoint accepts one",
}

var payCommand = &cli.Command{
	Name:        "pay",
	Usage:       "Pay an invoice, Lightning address or LNURL",
	ArgsUsage:   "<destination>",
	Description: `Pays through the configured NWC wallet. Exits non-zero unless the payment succeeded.`,
	Flags:       []cli.Flag{amountFlag, commentFlag},
	Action: withApp(func(c *cli.Context, a *app) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected exactly one destination")
		}
		return report(a.payer.Pay(c.Context, payment.Request{
			Destination: c.Args().First(),
			AmountMsat:  c.Int64("amount") * 1000,
			Comment:     c.String("comment"),
		}))
	}),
}

var zapCommand = &cli.Command{
	Name:      "zap",
	Usage:     "Send a NIP-57 zap to a Lightning address or LNURL",
	ArgsUsage: "<destination>",
	Flags: []cli.Flag{
		amountFlag,
		commentFlag,
		&cli.StringFlag{
			Name:     "pubkey",
			Usage:    "recipient pubkey, npub or hex",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "event",
			Usage: "zapped event as note, nevent or hex id",
		},
		&cli.StringFlag{
			Name:  "a-tag",
			Usage: "zapped addressable event as naddr or kind:pubkey:d",
		},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected exactly one destination")
		}
		if a.signer == nil {
			return fmt.Errorf("zaps need NOSTR_SECRET_KEY")
		}
		return report(a.payer.Pay(c.Context, payment.Request{
			Destination: c.Args().First(),
			AmountMsat:  c.Int64("amount") * 1000,
			Comment:     c.String("comment"),
			Zap: &payment.ZapTarget{
				RecipientPubkey: c.String("pubkey"),
				EventID:         c.String("event"),
				ATag:            c.String("a-tag"),
			},
		}))
	}),
}

// creatorArg reads the single creator argument as npub or hex.
func creatorArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected a creator pubkey")
	}
	return nips.DecodePubkey(c.Args().First())
}

// report prints the outcome and turns anything but success into an error.
func report(out payment.Outcome) error {
	if err := printJSON(out); err != nil {
		return err
	}
	if out.Status != payment.StatusSuccess {
		return fmt.Errorf("payment %s: %s", out.Status, out.Reason)
	}
	return nil
}

var balanceCommand = &cli.Command{
	Name:  "balance",
	Usage: "Show the wallet balance",
	Action: withApp(func(c *cli.Context, a *app) error {
		msat, err := a.session.GetBalance(c.Context)
		if err != nil {
			return err
		}
		return printJSON(map[string]int64{"balance_msat": msat, "balance_sats": msat / 1000})
	}),
}

var invoiceCommand = &cli.Command{
	Name:  "invoice",
	Usage: "Create an invoice to receive a payment",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "amount",
			Usage:    "amount in sats",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "memo",
			Usage: "invoice description",
		},
		&cli.BoolFlag{
			Name:  "no-qr",
			Usage: "print only the invoice",
		},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		pr, err := a.session.CreateInvoice(c.Context, c.Int64("amount")*1000, c.String("memo"))
		if err != nil {
			return err
		}
		if !c.Bool("no-qr") {
			qr, err := qrcode.New(pr, qrcode.Medium)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, qr.ToSmallString(false))
		}
		fmt.Fprintln(c.App.Writer, pr)
		return nil
	}),
}

var transactionsCommand = &cli.Command{
	Name:  "transactions",
	Usage: "List recent wallet payments",
	Action: withApp(func(c *cli.Context, a *app) error {
		payments, err := a.session.ListPayments(c.Context)
		if err != nil {
			return err
		}
		return printJSON(payments)
	}),
}

var subscriptionCommand = &cli.Command{
	Name:  "subscription",
	Usage: "Creator subscription settings, receipts and access checks",
	Subcommands: []*cli.Command{
		{
			Name:      "settings",
			Usage:     "Show a creator's subscription offer",
			ArgsUsage: "<creator-pubkey>",
			Action: withApp(func(c *cli.Context, a *app) error {
				creator, err := creatorArg(c)
				if err != nil {
					return err
				}
				s, err := a.subs.SettingsOrDefault(c.Context, creator)
				if err != nil {
					return err
				}
				return printJSON(s)
			}),
		},
		{
			Name:  "publish",
			Usage: "Publish your own subscription offer",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:  "monthly",
					Usage: "monthly price in sats",
					Value: zap.DefaultMonthlyPrice,
				},
			},
			Action: withApp(func(c *cli.Context, a *app) error {
				s := zap.DefaultSettings()
				s.MonthlyPrice = c.Int64("monthly")
				evt, err := a.subs.PublishSettings(c.Context, s)
				if err != nil {
					return err
				}
				return printJSON(evt)
			}),
		},
		{
			Name:      "access",
			Usage:     "Check whether a viewer holds an unexpired subscription",
			ArgsUsage: "<creator-pubkey>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "viewer",
					Usage: "viewer pubkey (defaults to your own)",
				},
			},
			Action: withApp(func(c *cli.Context, a *app) error {
				creator, err := creatorArg(c)
				if err != nil {
					return err
				}
				viewer := a.pubkey
				if v := c.String("viewer"); v != "" {
					if viewer, err = nips.DecodePubkey(v); err != nil {
						return err
					}
				}
				if viewer == "" {
					return fmt.Errorf("pass --viewer or set NOSTR_SECRET_KEY")
				}
				ok, err := a.subs.HasAccess(c.Context, viewer, creator)
				if err != nil {
					return err
				}
				exp, err := a.subs.Expiry(c.Context, viewer, creator)
				if err != nil {
					return err
				}
				resp := map[string]interface{}{"access": ok}
				if !exp.IsZero() {
					resp["expires_at"] = exp.UTC().Format(time.RFC3339)
				}
				return printJSON(resp)
			}),
		},
		{
			Name:      "receipt",
			Usage:     "Publish a subscription receipt for a payment made elsewhere",
			ArgsUsage: "<creator-pubkey>",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "months", Value: 1, Usage: "months paid for"},
				&cli.Int64Flag{Name: "amount", Required: true, Usage: "amount paid in sats"},
				&cli.StringFlag{Name: "payment-hash", Usage: "payment hash of the settled invoice"},
			},
			Action: withApp(func(c *cli.Context, a *app) error {
				creator, err := creatorArg(c)
				if err != nil {
					return err
				}
				evt, err := a.subs.PublishReceipt(c.Context, creator, c.Int("months"), c.Int64("amount"), c.String("payment-hash"))
				if err != nil {
					return err
				}
				return printJSON(evt)
			}),
		},
		{
			Name:      "pay",
			Usage:     "Pay for a creator subscription and publish the receipt",
			ArgsUsage: "<creator-pubkey>",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "months", Value: 1, Usage: "months to buy"},
			},
			Action: withApp(func(c *cli.Context, a *app) error {
				creator, err := creatorArg(c)
				if err != nil {
					return err
				}
				if a.signer == nil {
					return fmt.Errorf("subscriptions need NOSTR_SECRET_KEY")
				}
				months := c.Int("months")
				s, err := a.subs.SettingsOrDefault(c.Context, creator)
				if err != nil {
					return err
				}
				pr, err := a.subs.Invoice(c.Context, creator, months, s.MonthlyPrice)
				if err != nil {
					return err
				}
				return report(a.payer.Pay(c.Context, payment.Request{
					Destination:  pr,
					Subscription: &payment.SubscriptionTarget{Creator: creator, Months: months},
				}))
			}),
		},
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run the HTTP API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "listen address (overrides HTTP_ADDR)",
		},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		addr := c.String("addr")
		if addr == "" {
			addr = a.cfg.HTTPAddr
		}
		srv := (&server.Server{
			Session:       a.session,
			Payer:         a.payer,
			Lnurl:         a.lnurl,
			Subscriptions: a.subs,
		}).NewHTTPServer(addr)

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			server.LoggerFromContext(ctx).Info("starting server", "addr", addr, "wallet", a.cfg.WalletConfigured())
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}),
}
