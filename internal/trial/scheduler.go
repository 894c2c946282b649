package trial

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vishalbelsare/LibMultiLabel/internal/metrics"
	"github.com/vishalbelsare/LibMultiLabel/internal/search"
)

// SchedulerConfig controls how a sweep is run.
type SchedulerConfig struct {
	Experiment  string // sweep name, used for logging and history
	ValMetric   string // metric that ranks trials
	Mode        string // metrics.ModeMin or ModeMax, derived from ValMetric when empty
	NumSamples  int    // repeats per combination, minimum 1
	MaxParallel int    // concurrent trials, minimum 1

	// OnUpdate is invoked after every trial state change. It may be
	// called from multiple goroutines at once.
	OnUpdate func(*Trial)

	Logger *zap.Logger
}

// Scheduler runs every combination of an expansion through a trainer,
// NumSamples times each, at most MaxParallel at a time.
type Scheduler struct {
	trainer Trainer
	cfg     SchedulerConfig
	log     *zap.Logger
}

// NewScheduler builds a scheduler around a trainer.
func NewScheduler(trainer Trainer, cfg SchedulerConfig) *Scheduler {
	if cfg.NumSamples < 1 {
		cfg.NumSamples = 1
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = metrics.ModeFor(cfg.ValMetric)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{trainer: trainer, cfg: cfg, log: log}
}

// Report summarizes a completed sweep. Trials are ordered by
// combination index, then repeat.
type Report struct {
	Experiment string
	ValMetric  string
	Mode       string
	Trials     []*Trial
	Best       *Trial // nil when no trial finished
}

// Counts tallies trials by terminal status.
func (r *Report) Counts() (finished, failed, killed int) {
	for _, t := range r.Trials {
		switch t.Status {
		case StatusFinished:
			finished++
		case StatusFailed:
			failed++
		case StatusKilled:
			killed++
		}
	}
	return
}

// Run executes the sweep. A failing trial is recorded and skipped, it
// does not stop the others; cancelling ctx kills the trials that have
// not finished. The report covers every scheduled trial either way.
func (s *Scheduler) Run(ctx context.Context, x *search.Expansion) (*Report, error) {
	if x.Len() > math.MaxInt/s.cfg.NumSamples {
		return nil, errors.New("search space is too large to enumerate")
	}
	trials := make([]*Trial, 0, x.Len()*s.cfg.NumSamples)
	for i := 0; i < x.Len(); i++ {
		params, err := x.Assignment(i)
		if err != nil {
			return nil, err
		}
		for r := 0; r < s.cfg.NumSamples; r++ {
			trials = append(trials, &Trial{
				ID:     uuid.NewString(),
				Index:  i,
				Repeat: r,
				Params: params,
				Status: StatusPending,
			})
		}
	}

	s.log.Info("starting hyperparameter sweep",
		zap.String("experiment", s.cfg.Experiment),
		zap.Int("combinations", x.Len()),
		zap.Int("num_samples", s.cfg.NumSamples),
		zap.Int("trials", len(trials)),
		zap.Int("max_parallel", s.cfg.MaxParallel),
		zap.String("val_metric", s.cfg.ValMetric),
		zap.String("mode", s.cfg.Mode))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)
	for _, tr := range trials {
		g.Go(func() error {
			return s.runOne(gctx, x, tr)
		})
	}
	runErr := g.Wait()

	report := &Report{
		Experiment: s.cfg.Experiment,
		ValMetric:  s.cfg.ValMetric,
		Mode:       s.cfg.Mode,
		Trials:     trials,
		Best:       s.best(trials),
	}
	finished, failed, killed := report.Counts()
	s.log.Info("sweep complete",
		zap.Int("finished", finished),
		zap.Int("failed", failed),
		zap.Int("killed", killed))
	return report, runErr
}

func (s *Scheduler) runOne(ctx context.Context, x *search.Expansion, tr *Trial) error {
	if ctx.Err() != nil {
		tr.Status = StatusKilled
		tr.Err = ctx.Err().Error()
		s.notify(tr)
		return ctx.Err()
	}

	tr.Status = StatusRunning
	tr.StartedAt = time.Now()
	s.notify(tr)

	rec, err := x.At(tr.Index)
	if err != nil {
		s.fail(tr, err)
		return nil
	}

	res, err := s.trainer.Train(ctx, rec)
	tr.FinishedAt = time.Now()
	if err != nil {
		if ctx.Err() != nil {
			tr.Status = StatusKilled
			tr.Err = ctx.Err().Error()
			s.notify(tr)
			return ctx.Err()
		}
		s.fail(tr, err)
		return nil
	}
	if _, ok := res.Metrics[s.cfg.ValMetric]; !ok && s.cfg.ValMetric != "" {
		s.fail(tr, fmt.Errorf("trainer reported no %s", s.cfg.ValMetric))
		return nil
	}

	tr.Status = StatusFinished
	tr.Metrics = res.Metrics
	s.log.Info("trial finished",
		zap.Int("trial", tr.Index),
		zap.Int("repeat", tr.Repeat),
		zap.Strings("params", tr.Params),
		zap.Float64(s.cfg.ValMetric, res.Metrics[s.cfg.ValMetric]),
		zap.Duration("elapsed", tr.Duration()))
	s.notify(tr)
	return nil
}

// fail marks a trial failed without stopping the sweep.
func (s *Scheduler) fail(tr *Trial, err error) {
	tr.Status = StatusFailed
	tr.Err = err.Error()
	if tr.FinishedAt.IsZero() {
		tr.FinishedAt = time.Now()
	}
	s.log.Warn("trial failed",
		zap.Int("trial", tr.Index),
		zap.Int("repeat", tr.Repeat),
		zap.Strings("params", tr.Params),
		zap.Error(err))
	s.notify(tr)
}

func (s *Scheduler) notify(tr *Trial) {
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(tr)
	}
}

// best returns the finished trial with the strongest validation metric.
// Earlier trials win ties, so reruns of a deterministic trainer are
// stable.
func (s *Scheduler) best(trials []*Trial) *Trial {
	var best *Trial
	for _, tr := range trials {
		if tr.Status != StatusFinished {
			continue
		}
		v, ok := tr.Metrics[s.cfg.ValMetric]
		if !ok {
			continue
		}
		if best == nil || s.improves(v, best.Metrics[s.cfg.ValMetric]) {
			best = tr
		}
	}
	return best
}

func (s *Scheduler) improves(v, current float64) bool {
	if s.cfg.Mode == metrics.ModeMin {
		return v < current
	}
	return v > current
}
