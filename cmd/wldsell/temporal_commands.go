package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/wldsell/service/temporal"
	"github.com/urfave/cli/v2"
)

func sweepFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "orphan-grace-period",
			Usage:   "How long a confirmed payment may go without an order before it is reported",
			EnvVars: []string{"ORPHAN_GRACE_PERIOD"},
			Value:   15 * time.Minute,
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Maximum orphans reported per sweep (0 uses the worker default)",
		},
	}
}

func sweepInput(c *cli.Context) (temporal.SweepInput, error) {
	grace := c.Duration("orphan-grace-period")
	if grace <= 0 {
		return temporal.SweepInput{}, fmt.Errorf("orphan-grace-period must be positive")
	}
	if c.Int("batch-size") < 0 {
		return temporal.SweepInput{}, fmt.Errorf("batch-size cannot be negative")
	}
	return temporal.SweepInput{
		OrphanGracePeriod: grace,
		BatchSize:         int32(c.Int("batch-size")),
	}, nil
}

func ensureScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "ensure-schedule",
		Usage: "Create or update the reference sweep schedule",
		Flags: append([]cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "How often the sweep runs",
				EnvVars: []string{"SWEEP_INTERVAL"},
				Value:   5 * time.Minute,
			},
		}, sweepFlags()...),
		Action: func(c *cli.Context) error {
			interval := c.Duration("interval")
			if interval < time.Second {
				return fmt.Errorf("interval must be at least 1s")
			}
			input, err := sweepInput(c)
			if err != nil {
				return err
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.EnsureSweepSchedule(c.Context, interval, input); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule %s runs every %s\n", temporal.SweepScheduleID, interval)
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-schedule",
		Usage: "Delete the reference sweep schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("force") {
				fmt.Fprintf(c.App.Writer, "This stops expiring references and reporting orphaned payments.\n")
				fmt.Fprintf(c.App.Writer, "Type 'yes' to delete %s: ", temporal.SweepScheduleID)
				var answer string
				fmt.Fscanln(c.App.Reader, &answer)
				if answer != "yes" {
					fmt.Fprintln(c.App.Writer, "Aborted")
					return nil
				}
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteSweepSchedule(c.Context); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule %s deleted\n", temporal.SweepScheduleID)
			return nil
		},
	}
}

func sweepNowCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep-now",
		Usage: "Run the reference sweep once and wait for its result",
		Flags: append(sweepFlags(), &cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait for the sweep",
			Value: 2 * time.Minute,
		}),
		Action: func(c *cli.Context) error {
			input, err := sweepInput(c)
			if err != nil {
				return err
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			result, err := tc.RunSweep(ctx, input)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c, result)
			}
			fmt.Fprintf(c.App.Writer, "Expired:  %d references\n", result.Expired)
			fmt.Fprintf(c.App.Writer, "Orphaned: %d payments\n", result.Orphaned)
			fmt.Fprintf(c.App.Writer, "Reported: %d payments\n", result.Reported)
			fmt.Fprintf(c.App.Writer, "Swept at: %s\n", result.SweptAt.Format(time.RFC3339))
			return nil
		},
	}
}

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	host := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	if v := c.String("temporal-host"); v != "" {
		host = v
	}
	namespace := getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	if v := c.String("temporal-namespace"); v != "" {
		namespace = v
	}
	taskQueue := getEnvOrDefault("TEMPORAL_TASK_QUEUE", "wldsell-sweep")
	if v := c.String("temporal-task-queue"); v != "" {
		taskQueue = v
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return temporal.NewClient(host, namespace, taskQueue, logger)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
