package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
	"github.com/vishalbelsare/LibMultiLabel/internal/search"
	"github.com/vishalbelsare/LibMultiLabel/internal/store"
	"github.com/vishalbelsare/LibMultiLabel/internal/trial"
)

// experimentName overrides the derived history name of a sweep.
var experimentName string

// searchCmd runs a full hyperparameter sweep
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Train every combination of the configuration's search space",
	Long: `Expands the grid_search and choice directives in the configuration file
and trains one trial per combination of candidate values.

Trials run through the same external trainer as the train command, at most
max_parallel at a time and num_samples times per combination. Every trial is
recorded in the history database as it finishes; when the sweep completes,
the best trial by val_metric is reported.

A failing trial does not stop the sweep. Interrupting the sweep (Ctrl-C)
stops the running trials and marks the rest killed; rerunning the same
experiment resumes into the same history.

Examples:
  multilabel search -c example_config/rcv1/kim_cnn_grid.yml
  multilabel search -c grid.yml --num-samples 3 --max-parallel 4
  multilabel search -c grid.yml --experiment rcv1_sweep`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	rec, err := loadRecord()
	if err != nil {
		return err
	}
	applyOverrides(cmd, rec)
	if err := config.ValidateRecord(rec); err != nil {
		return err
	}

	x, err := search.Expand(rec)
	if err != nil {
		return err
	}
	dirs := x.Directives()

	valMetric := rec.GetString("val_metric", "P@1")
	numSamples := rec.GetInt("num_samples", 1)
	maxParallel := rec.GetInt("max_parallel", 1)

	name := experimentName
	if name == "" {
		name = fmt.Sprintf("%s_%s",
			rec.GetString("data_name", "unnamed_data"),
			rec.GetString("model_name", "KimCNN"))
	}

	path := dbPath
	if path == "" {
		path = filepath.Join(rec.GetString("result_dir", "runs"), "trials.db")
	}
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open trial history: %w", err)
	}
	defer st.Close()
	expID, err := st.CreateExperiment(name,
		rec.GetString("data_name", "unnamed_data"),
		rec.GetString("model_name", "KimCNN"),
		valMetric)
	if err != nil {
		return err
	}

	fmt.Printf("Experiment %s: %d combinations x %d samples = %d trials, %d in parallel\n",
		name, x.Len(), numSamples, x.Len()*numSamples, maxParallel)

	// OnUpdate runs on scheduler goroutines; the mutex keeps progress
	// lines whole.
	var mu sync.Mutex
	onUpdate := func(t *trial.Trial) {
		if err := st.RecordTrial(expID, t); err != nil {
			logger.Warn("failed to record trial", zap.String("trial", t.ID), zap.Error(err))
		}
		mu.Lock()
		defer mu.Unlock()
		switch t.Status {
		case trial.StatusFinished:
			fmt.Printf("  trial %d.%d finished  %s  %s=%.4f\n",
				t.Index, t.Repeat, paramLine(dirs, t.Params), valMetric, t.Metrics[valMetric])
		case trial.StatusFailed:
			fmt.Printf("  trial %d.%d failed: %s\n", t.Index, t.Repeat, t.Err)
		case trial.StatusKilled:
			fmt.Printf("  trial %d.%d killed\n", t.Index, t.Repeat)
		}
	}

	sched := trial.NewScheduler(&trial.CommandTrainer{
		Argv:    strings.Fields(trainerCmdline),
		Timeout: timeout,
		Logger:  logger,
	}, trial.SchedulerConfig{
		Experiment:  name,
		ValMetric:   valMetric,
		NumSamples:  numSamples,
		MaxParallel: maxParallel,
		OnUpdate:    onUpdate,
		Logger:      logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nSearch cancelled, stopping running trials")
		cancel()
	}()

	report, runErr := sched.Run(ctx, x)
	if report != nil {
		printReport(report, dirs)
	}
	if runErr != nil {
		return runErr
	}
	finished, _, _ := report.Counts()
	if finished == 0 {
		return fmt.Errorf("no trial finished")
	}
	return nil
}

// paramLine renders a directive assignment as name=value pairs.
func paramLine(dirs []search.Directive, params []string) string {
	parts := make([]string, 0, len(params))
	for i, v := range params {
		if i < len(dirs) {
			parts = append(parts, fmt.Sprintf("%s=%s", dirs[i].Path, v))
		} else {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// printReport prints the sweep summary.
func printReport(r *trial.Report, dirs []search.Directive) {
	finished, failed, killed := r.Counts()
	fmt.Printf("\nSweep %s: %d finished, %d failed, %d killed\n", r.Experiment, finished, failed, killed)
	if r.Best == nil {
		fmt.Println("No finished trial, no best configuration.")
		return
	}
	fmt.Printf("Best trial by %s (%s): %.4f\n", r.ValMetric, r.Mode, r.Best.Metrics[r.ValMetric])
	for i, v := range r.Best.Params {
		if i < len(dirs) {
			fmt.Printf("  %s: %s\n", dirs[i].Path, v)
		}
	}
}

func init() {
	searchCmd.Flags().StringVar(&trainerCmdline, "trainer-cmd", defaultTrainerCmd,
		"Trainer command; {config} is replaced with the configuration path")
	searchCmd.Flags().StringVar(&experimentName, "experiment", "",
		"Experiment name in the history database (default: <data_name>_<model_name>)")
	addOverrideFlags(searchCmd)
}
