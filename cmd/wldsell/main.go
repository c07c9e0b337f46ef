package main

import (
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Amounts travel as JSON numbers, as the server sends them.
	decimal.MarshalJSONWithoutQuotes = true

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "wldsell",
		Usage: "WLD sell service CLI",
		Description: `A command-line tool for selling WLD and operating the wldsell service.

Use this CLI to run a sale from the terminal, inspect orders and payment
references, manage the reference sweep and follow live events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			sellCommand(),
			quoteCommand(),
			priceCommand(),
			// Orders through the HTTP API
			{
				Name:  "orders",
				Usage: "Order commands",
				Subcommands: []*cli.Command{
					listOrdersCommand(),
				},
			},
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Database inspection and maintenance commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					dbListOrdersCommand(),
					setOrderStatusCommand(),
					listReferencesCommand(),
				},
			},
			// Temporal management commands
			{
				Name:  "temporal",
				Usage: "Reference sweep schedule commands",
				Subcommands: []*cli.Command{
					ensureScheduleCommand(),
					deleteScheduleCommand(),
					sweepNowCommand(),
				},
			},
			// NATS event streaming commands
			{
				Name:  "nats",
				Usage: "NATS event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// SSE streaming commands
			sseCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue of the sweep worker",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "wldsell-sweep",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "wldsell server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
