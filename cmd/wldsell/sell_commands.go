package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brojonat/wldsell/client"
	"github.com/brojonat/wldsell/service/commission"
	"github.com/brojonat/wldsell/service/metrics"
	"github.com/brojonat/wldsell/service/sell"
	"github.com/brojonat/wldsell/service/walletbridge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func sellCommand() *cli.Command {
	return &cli.Command{
		Name:  "sell",
		Usage: "Sell WLD: pay from World App and record a payout order",
		Description: `Runs a full sale against the wldsell server.

The payment request is shown as a World App QR code and deep link. Once the
wallet completes the payment, paste its final payload JSON (one line) to
finish the sale.

Example:
  wldsell sell --username maria --amount 25 --method paypal --paypal-email maria@example.com`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Seller username",
				EnvVars: []string{"WLDSELL_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "email",
				Usage:   "Seller email",
				EnvVars: []string{"WLDSELL_EMAIL"},
			},
			&cli.StringFlag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Amount of WLD to sell",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"m"},
				Usage:   "Payout method: bank or paypal",
				Value:   string(sell.MethodBankTransfer),
			},
			&cli.StringFlag{
				Name:  "bank-name",
				Usage: "Bank name (bank payouts)",
			},
			&cli.StringFlag{
				Name:  "full-name",
				Usage: "Account holder name (bank payouts)",
			},
			&cli.StringFlag{
				Name:  "account-number",
				Usage: "Account number or IBAN (bank payouts)",
			},
			&cli.StringFlag{
				Name:  "paypal-email",
				Usage: "PayPal email (paypal payouts)",
			},
			&cli.StringFlag{
				Name:  "price",
				Usage: "WLD price to record instead of the live price",
			},
			&cli.StringFlag{
				Name:     "destination",
				Usage:    "Address receiving the WLD payment",
				EnvVars:  []string{"PAYOUT_DESTINATION_ADDRESS"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "app-id",
				Usage:    "World App mini app id",
				EnvVars:  []string{"WORLD_APP_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "commission-tiers",
				Usage:   "Commission schedule shown in the summary (min:pct,...)",
				EnvVars: []string{"COMMISSION_TIERS"},
				Value:   commission.DefaultScheduleSpec,
			},
			&cli.StringFlag{
				Name:  "payload-file",
				Usage: "Read the wallet final payload from this file instead of stdin",
			},
			&cli.BoolFlag{
				Name:  "no-wallet",
				Usage: "Run without a wallet attached",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the whole sale",
				Value: 10 * time.Minute,
			},
			&cli.StringFlag{
				Name:    "metrics-file",
				Usage:   "Write the sale metrics to this file in Prometheus text format (textfile collector)",
				EnvVars: []string{"WLDSELL_METRICS_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			schedule, err := commission.ParseSchedule(c.String("commission-tiers"))
			if err != nil {
				return fmt.Errorf("invalid commission tiers: %w", err)
			}

			amount, err := decimal.NewFromString(strings.TrimSpace(c.String("amount")))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.String("amount"), err)
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			api := newAPIClient(c, nil)

			wldPrice, err := salePrice(ctx, c, api.Price)
			if err != nil {
				return err
			}

			var in io.Reader
			if !c.Bool("no-wallet") {
				in = c.App.Reader
				if path := c.String("payload-file"); path != "" {
					f, err := os.Open(path)
					if err != nil {
						return fmt.Errorf("failed to open payload file: %w", err)
					}
					defer f.Close()
					in = f
				}
			}
			bridge := walletbridge.NewTerminalBridge(c.String("app-id"), c.App.ErrWriter, in)

			logger := slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))

			registry := prometheus.NewRegistry()
			orch, err := sell.New(sell.Options{
				References:  api,
				Bridge:      bridge,
				Confirmer:   api,
				Recorder:    api,
				Notifier:    sell.NotifierFunc(func(_ context.Context, n sell.Notification) { printNotification(c, n) }),
				Schedule:    schedule,
				Destination: c.String("destination"),
				Metrics:     metrics.NewMetrics(registry),
				Logger:      logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create sell orchestrator: %w", err)
			}

			var user *sell.User
			if username := strings.TrimSpace(c.String("username")); username != "" {
				user = &sell.User{Username: username, Email: c.String("email")}
			}

			form := &sell.Form{
				Amount:        amount,
				PaymentMethod: sell.PaymentMethod(c.String("method")),
				BankName:      c.String("bank-name"),
				FullName:      c.String("full-name"),
				AccountNumber: c.String("account-number"),
				PayPalEmail:   c.String("paypal-email"),
				WLDPrice:      wldPrice,
			}

			out := orch.Submit(ctx, user, form)
			if path := c.String("metrics-file"); path != "" {
				if err := prometheus.WriteToTextfile(path, registry); err != nil {
					logger.Error("failed to write metrics file", "path", path, "error", err)
				}
			}
			if err := out.Err(); err != nil {
				if out.Redirect != "" {
					fmt.Fprintf(c.App.ErrWriter, "→ %s\n", out.Redirect)
				}
				return err
			}

			order := out.Final.Order
			if c.Bool("json") {
				return outputJSON(c, order)
			}
			printOrders(c, []sell.Order{*order})
			return nil
		},
	}
}

// salePrice returns the --price override or the live price.
func salePrice(ctx context.Context, c *cli.Context, live func(context.Context) (*client.Price, error)) (decimal.Decimal, error) {
	if s := c.String("price"); s != "" {
		p, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid price %q: %w", s, err)
		}
		return p, nil
	}

	p, err := live(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get live price (use --price to set one): %w", err)
	}
	if p.Stale {
		fmt.Fprintf(c.App.ErrWriter, "⚠️  price source unavailable, using last known price %s\n", p.Price.String())
	}
	return p.Price, nil
}

func printNotification(c *cli.Context, n sell.Notification) {
	icon := "✓"
	if n.Destructive {
		icon = "✗"
	}
	fmt.Fprintf(c.App.ErrWriter, "%s %s\n  %s\n", icon, n.Title, n.Description)
}
