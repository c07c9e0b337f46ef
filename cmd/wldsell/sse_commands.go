package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/wldsell/client"
	"github.com/urfave/cli/v2"
)

func sseCommands() *cli.Command {
	return &cli.Command{
		Name:  "sse",
		Usage: "Server-Sent Events (SSE) streaming commands",
		Subcommands: []*cli.Command{
			streamPriceCommand(),
		},
	}
}

func streamPriceCommand() *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "Stream live WLD price ticks via SSE (HTTP)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Stop after this many ticks (0 streams until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			jsonOutput := c.Bool("json")
			limit := c.Int("count")

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "📡 Streaming prices from %s\n\n", c.String("server-url"))
			}

			errDone := errors.New("done")
			received := 0
			err := newAPIClient(c, nil).StreamPrice(ctx, func(p client.Price) error {
				received++
				if jsonOutput {
					data, err := json.Marshal(p)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, string(data))
				} else {
					fmt.Fprintf(c.App.Writer, "[%s] 1 %s = %s %s\n",
						p.FetchedAt.Format(time.RFC3339), p.Symbol, p.Price.String(), p.Currency)
				}
				if limit > 0 && received >= limit {
					return errDone
				}
				return nil
			})

			switch {
			case errors.Is(err, errDone), errors.Is(err, context.Canceled):
				return nil
			case err != nil:
				return fmt.Errorf("price stream failed: %w", err)
			}
			return nil
		},
	}
}
