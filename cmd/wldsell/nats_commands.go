package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	natspkg "github.com/brojonat/wldsell/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams sell events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to sell events",
		ArgsUsage: "[subject]",
		Description: `Subscribe to real-time events published to the SELL_EVENTS stream.

Subjects:
  sell.price                 live price ticks
  sell.orders.created        recorded orders
  sell.payments.confirmed    confirmed wallet payments
  sell.payments.orphaned     confirmed payments that never got an order

Without a subject every sell event is shown. Events can be narrowed further
with jq expressions that must all be truthy.

Example:
  wldsell nats subscribe sell.orders.created --must-jq '.amount > 100' --json`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Aliases: []string{"jq"},
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "wldsell-cli",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Replay every retained event instead of only new ones",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = c.Args().First()
			}

			filters, err := compileFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			return streamEvents(c, subject, filters)
		},
	}
}

func streamEvents(c *cli.Context, subject string, filters []*gojq.Code) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")
	durable := c.Bool("durable")
	consumerName := c.String("consumer-name")

	nc, err := natspkg.Connect(natsURL, "wldsell-cli")
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(c.App.ErrWriter, "📡 Subscribing to: %s\n", subject)
		fmt.Fprintf(c.App.ErrWriter, "   NATS: %s\n", natsURL)
		if durable {
			fmt.Fprintf(c.App.ErrWriter, "   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Fprintf(c.App.ErrWriter, "\nWaiting for events... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if c.Bool("all") {
		consumerConfig.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(c.Context, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			ok, err := matchesAll(filters, msg.Data())
			if err != nil && !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
			}
			if ok {
				count++
				if jsonOutput {
					fmt.Fprintln(c.App.Writer, string(msg.Data()))
				} else {
					fmt.Fprint(c.App.Writer, formatEvent(msg.Subject(), msg.Data()))
				}
			}
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\n\n✅ Received %d events\n", count)
			}
			return nil

		case <-c.Context.Done():
			return nil
		}
	}
}

// compileFilters parses and compiles --must-jq expressions.
func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, 0, len(exprs))
	for _, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// matchesAll reports whether every filter yields a truthy first result for
// the JSON document data. With no filters everything matches.
func matchesAll(filters []*gojq.Code, data []byte) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, err
	}

	for _, code := range filters {
		v, ok := code.Run(doc).Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, err
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// formatEvent renders an event for humans, falling back to the raw payload.
func formatEvent(subject string, data []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(&b, "%s\n", subject)
	fmt.Fprintf(&b, "─────────────────────────────────────────────────────\n")

	switch {
	case subject == natspkg.SubjectPrice:
		var e natspkg.PriceEvent
		if json.Unmarshal(data, &e) != nil {
			break
		}
		fmt.Fprintf(&b, "Price:        %s %s per %s\n", e.Price.String(), e.Currency, e.Symbol)
		fmt.Fprintf(&b, "Fetched:      %s\n\n", e.FetchedAt.Format(time.RFC3339))
		return b.String()

	case subject == natspkg.SubjectOrderCreated:
		var e natspkg.OrderEvent
		if json.Unmarshal(data, &e) != nil {
			break
		}
		fmt.Fprintf(&b, "Order:        #%d (%s)\n", e.OrderID, e.Reference)
		fmt.Fprintf(&b, "Seller:       %s\n", e.Username)
		fmt.Fprintf(&b, "Amount:       %s WLD @ %s\n", e.Amount.String(), e.WLDPrice.String())
		fmt.Fprintf(&b, "Commission:   %s WLD\n", e.Commission.String())
		fmt.Fprintf(&b, "Net:          %s via %s\n", e.NetAmount.StringFixed(2), e.PaymentMethod)
		fmt.Fprintf(&b, "Status:       %s\n\n", e.Status)
		return b.String()

	case strings.HasPrefix(subject, "sell.payments."):
		var e natspkg.PaymentEvent
		if json.Unmarshal(data, &e) != nil {
			break
		}
		fmt.Fprintf(&b, "Payment:      %s (%s)\n", e.Reference, e.Kind)
		fmt.Fprintf(&b, "Transaction:  %s\n", e.TransactionID)
		if e.ConfirmedAt != nil {
			fmt.Fprintf(&b, "Confirmed:    %s\n", e.ConfirmedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&b, "\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s\n\n", data)
	return b.String()
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the SELL_EVENTS JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := natspkg.Connect(c.String("nats-url"), "wldsell-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, info)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
