// Package trial schedules training runs over expanded configuration
// records and tracks their outcomes.
package trial

import (
	"context"
	"time"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
)

// Status is the lifecycle state of one trial.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	StatusKilled   Status = "killed"
)

// Trial is one training run over a concrete configuration record.
type Trial struct {
	ID     string // stable identifier, assigned at scheduling time
	Index  int    // combination index within the expansion
	Repeat int    // sample number when num_samples > 1

	// Params holds the directive assignment for this combination,
	// rendered in declaration order.
	Params []string

	Status     Status
	Metrics    map[string]float64
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the trial ran, zero if it never started.
func (t *Trial) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Result is what a trainer reports for one completed run.
type Result struct {
	Metrics map[string]float64
}

// Trainer runs one concrete configuration record to completion and
// reports its validation metrics.
type Trainer interface {
	Train(ctx context.Context, rec *config.Record) (*Result, error)
}

// TrainerFunc adapts a function to the Trainer interface.
type TrainerFunc func(ctx context.Context, rec *config.Record) (*Result, error)

// Train calls f.
func (f TrainerFunc) Train(ctx context.Context, rec *config.Record) (*Result, error) {
	return f(ctx, rec)
}
