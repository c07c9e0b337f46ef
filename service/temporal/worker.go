package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/wldsell/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Store     StoreInterface
	Publisher PublisherInterface
	Metrics   *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger    *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     4,
		MaxConcurrentWorkflowTaskExecutionSize: 4,
	})

	// The sweep is a single short workflow per interval.
	w.RegisterWorkflow(SweepReferencesWorkflow)
	w.RegisterActivity(NewActivities(config.Store, config.Publisher, config.Metrics, logger))
	logger.Info("registered reference sweep", "workflow", "SweepReferencesWorkflow")

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Run processes sweep workflows and activities until ctx is cancelled,
// then stops the worker and closes the Temporal connection.
func (w *Worker) Run(ctx context.Context) error {
	defer w.client.Close()

	w.logger.Info("starting temporal worker")
	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	<-ctx.Done()

	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.logger.Info("temporal worker stopped")
	return nil
}
