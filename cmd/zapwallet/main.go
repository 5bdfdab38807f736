package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()

	app.Name = "zapwallet"
	app.Usage = "Pay Lightning destinations, zaps and creator subscriptions through Nostr Wallet Connect"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "optional config file (yaml, json or toml); environment variables take precedence",
			EnvVars: []string{"ZAPWALLET_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "log at debug level",
		},
	}
	app.Commands = []*cli.Command{
		resolveCommand,
		payCommand,
		zapCommand,
		balanceCommand,
		invoiceCommand,
		transactionsCommand,
		subscriptionCommand,
		serveCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[zapwallet] %v\n", err)
	os.Exit(1)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
