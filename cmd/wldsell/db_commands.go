package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/db/migrations"
	"github.com/brojonat/wldsell/service/sell"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "list",
				Usage: "Only list the embedded migrations",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("list") {
				names, err := migrations.Names()
				if err != nil {
					return fmt.Errorf("failed to list migrations: %w", err)
				}
				for _, name := range names {
					fmt.Fprintln(c.App.Writer, name)
				}
				return nil
			}

			pool, err := getPool(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(c.Context, pool)
			if err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, map[string]any{"applied": applied})
			}
			if len(applied) == 0 {
				fmt.Fprintln(c.App.Writer, "✓ Schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(c.App.Writer, "✓ applied %s\n", name)
			}
			return nil
		},
	}
}

func dbListOrdersCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-orders",
		Usage:   "List orders, newest first",
		Aliases: []string{"orders"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Filter by seller username",
			},
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (pendiente, confirmada, fallida)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of orders",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of orders to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			orders, err := store.ListOrders(c.Context, db.ListOrdersParams{
				Username: c.String("username"),
				Status:   c.String("status"),
				Limit:    int32(c.Int("limit")),
				Offset:   int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list orders: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, orders)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREFERENCE\tUSERNAME\tAMOUNT\tMETHOD\tNET\tSTATUS\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					o.ID,
					o.Reference,
					o.Username,
					o.Amount.String(),
					o.PaymentMethod,
					o.NetAmount.StringFixed(2),
					o.Status,
					o.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d orders\n", len(orders))
			return nil
		},
	}
}

func setOrderStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-order-status",
		Usage:     "Move a pending order to confirmada or fallida",
		ArgsUsage: "<order-id> <status>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: order id and status")
			}

			id, err := strconv.ParseInt(c.Args().Get(0), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q: %w", c.Args().Get(0), err)
			}
			status := sell.OrderStatus(c.Args().Get(1))
			if status != sell.StatusConfirmed && status != sell.StatusFailed {
				return fmt.Errorf("status must be %q or %q", sell.StatusConfirmed, sell.StatusFailed)
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			order, err := store.UpdateOrderStatus(c.Context, id, string(status))
			if err != nil {
				return fmt.Errorf("failed to update order %d: %w", id, err)
			}

			if c.Bool("json") {
				return outputJSON(c, order)
			}
			fmt.Fprintf(c.App.Writer, "✓ Order %d is now %s\n", order.ID, order.Status)
			return nil
		},
	}
}

func listReferencesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-references",
		Usage:   "List payment references, newest first",
		Aliases: []string{"refs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (issued, confirmed, expired)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of references",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			refs, err := store.ListReferences(c.Context, c.String("status"), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list references: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, refs)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTRANSACTION\tCREATED\tEXPIRES\tCONFIRMED")
			for _, r := range refs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID,
					r.Status,
					formatOptional(r.TransactionID),
					r.CreatedAt.Format(time.RFC3339),
					r.ExpiresAt.Format(time.RFC3339),
					formatOptionalTime(r.ConfirmedAt),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d references\n", len(refs))
			return nil
		},
	}
}

// Helper function to connect to database
func getPool(c *cli.Context) (*pgxpool.Pool, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	pool, err := getPool(c)
	if err != nil {
		return nil, nil, err
	}
	return db.NewStore(pool, nil), pool.Close, nil
}

func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "-"
}

func formatOptionalTime(t *time.Time) string {
	if t != nil {
		return t.Format(time.RFC3339)
	}
	return "-"
}
