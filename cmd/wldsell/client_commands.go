package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/wldsell/client"
	"github.com/brojonat/wldsell/service/sell"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

// newAPIClient builds an API client for --server-url. Only errors are logged.
func newAPIClient(c *cli.Context, httpClient *http.Client) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(c.String("server-url"), httpClient, logger)
}

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "Show the live WLD price",
		Action: func(c *cli.Context) error {
			p, err := newAPIClient(c, nil).Price(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get price: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, p)
			}

			fmt.Fprintf(c.App.Writer, "1 %s = %s %s\n", p.Symbol, p.Price.String(), p.Currency)
			fmt.Fprintf(c.App.Writer, "Fetched: %s\n", p.FetchedAt.Format(time.RFC3339))
			if p.Stale {
				fmt.Fprintf(c.App.Writer, "⚠️  price source unavailable, showing last known price\n")
			}
			return nil
		},
	}
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "Show the commission and payout for selling an amount of WLD",
		ArgsUsage: "<amount>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: amount")
			}
			amount, err := decimal.NewFromString(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.Args().First(), err)
			}

			q, err := newAPIClient(c, nil).Quote(c.Context, amount)
			if err != nil {
				return fmt.Errorf("failed to get quote: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, q)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Amount:     %s WLD\n", q.Amount.String())
			fmt.Fprintf(w, "Price:      %s %s\n", q.Price.String(), q.Currency)
			fmt.Fprintf(w, "Commission: %s WLD (%s%%)\n", q.Commission.String(), q.CommissionPercentage.Shift(2).String())
			fmt.Fprintf(w, "You sell:   %s WLD\n", q.NetTokens.String())
			fmt.Fprintf(w, "You get:    %s %s\n", q.NetAmount.StringFixed(2), q.Currency)
			return nil
		},
	}
}

func listOrdersCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List a seller's orders, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Usage:    "Seller username",
				EnvVars:  []string{"WLDSELL_USERNAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (pendiente, confirmada, fallida)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of orders",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of orders to skip",
			},
		},
		Action: func(c *cli.Context) error {
			orders, err := newAPIClient(c, nil).ListOrders(c.Context, c.String("username"), client.ListOrdersOptions{
				Status: c.String("status"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list orders: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, orders)
			}

			printOrders(c, orders)
			return nil
		},
	}
}

func printOrders(c *cli.Context, orders []sell.Order) {
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREFERENCE\tAMOUNT\tMETHOD\tPRICE\tCOMMISSION\tNET\tSTATUS\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID,
			o.Reference,
			o.Amount.String(),
			o.PaymentMethod,
			o.WLDPrice.String(),
			o.Commission.String(),
			o.NetAmount.StringFixed(2),
			o.Status,
			o.Timestamp.Format(time.RFC3339),
		)
	}
	w.Flush()

	fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d orders\n", len(orders))
}

// outputJSON writes v as indented JSON to the app's writer.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
