package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// SweepReferencesWorkflow keeps payment references tidy. It is triggered by
// the sweep schedule and performs these steps:
//  1. Expire issued references past their expiry (ExpireReferences)
//  2. Find confirmed payments with no order after the grace period (FindOrphanedPayments)
//  3. Publish and mark those payments as reported (ReportOrphanedPayments)
//  4. Record the run duration and status (RecordSweep)
//
// Orphans are only reported. Settling them is an operator decision.
func SweepReferencesWorkflow(ctx workflow.Context, input SweepInput) (*SweepResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SweepReferencesWorkflow started",
		"grace_period", input.OrphanGracePeriod,
		"batch_size", input.BatchSize,
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	result := &SweepResult{SweptAt: workflow.Now(ctx)}
	err := sweep(ctx, input, result)

	status := SweepStatusSuccess
	if err != nil {
		status = SweepStatusError
	}
	// Metrics live in the worker process, so the run duration goes through an activity.
	recordErr := workflow.ExecuteActivity(ctx, a.RecordSweep, RecordSweepInput{
		Status:   status,
		Duration: workflow.Now(ctx).Sub(result.SweptAt),
	}).Get(ctx, nil)
	if recordErr != nil {
		logger.Warn("failed to record sweep duration", "error", recordErr)
	}

	if err != nil {
		return result, err
	}
	logger.Info("SweepReferencesWorkflow completed",
		"expired", result.Expired,
		"orphaned", result.Orphaned,
		"reported", result.Reported,
	)
	return result, nil
}

func sweep(ctx workflow.Context, input SweepInput, result *SweepResult) error {
	var expired *ExpireReferencesResult
	if err := workflow.ExecuteActivity(ctx, a.ExpireReferences).Get(ctx, &expired); err != nil {
		return fmt.Errorf("failed to expire references: %w", err)
	}
	result.Expired = expired.Expired

	var orphans *FindOrphanedPaymentsResult
	err := workflow.ExecuteActivity(ctx, a.FindOrphanedPayments, FindOrphanedPaymentsInput{
		GracePeriod: input.OrphanGracePeriod,
		Limit:       input.batchSize(),
	}).Get(ctx, &orphans)
	if err != nil {
		return fmt.Errorf("failed to find orphaned payments: %w", err)
	}
	result.Orphaned = len(orphans.Payments)

	if len(orphans.Payments) == 0 {
		return nil
	}

	var reported *ReportOrphanedPaymentsResult
	err = workflow.ExecuteActivity(ctx, a.ReportOrphanedPayments, ReportOrphanedPaymentsInput{
		Payments: orphans.Payments,
	}).Get(ctx, &reported)
	if err != nil {
		return fmt.Errorf("failed to report orphaned payments: %w", err)
	}
	result.Reported = reported.Reported
	return nil
}
