package temporal

import (
	"context"
	"time"
)

const (
	// SweepScheduleID is the Temporal schedule that runs the reference sweep.
	SweepScheduleID = "wldsell-reference-sweep"

	// SweepWorkflowIDPrefix prefixes workflow ids started by the sweep.
	SweepWorkflowIDPrefix = "sweep-references"
)

// Scheduler manages the reference sweep schedule.
type Scheduler interface {
	// EnsureSweepSchedule creates the schedule or brings an existing one
	// up to date with interval and input.
	EnsureSweepSchedule(ctx context.Context, interval time.Duration, input SweepInput) error
}
