package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
	"github.com/vishalbelsare/LibMultiLabel/internal/metrics"
	"github.com/vishalbelsare/LibMultiLabel/internal/store"
	"github.com/vishalbelsare/LibMultiLabel/internal/trial"
)

// defaultTrainerCmd runs the Python trainer next to this tool.
const defaultTrainerCmd = "python3 main.py --config {config}"

// trainerCmdline is the trainer command template, shared by train and
// search.
var trainerCmdline string

// trainCmd runs one training trial
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train one model from a concrete configuration",
	Long: `Runs a single training trial with the parameters in the configuration file.

The configuration must be concrete: a file that still contains grid_search or
choice directives describes a search space and belongs to the search command.

Training happens in an external trainer process named by --trainer-cmd. The
literal {config} in the command is replaced with the path of a temporary YAML
file holding the resolved configuration, and the trainer reports results by
printing a line of the form

  METRICS {"P@1": 0.858, "Loss": 0.042}

to stdout. The reported metrics are printed as an evaluation table and
recorded in the trial history database.

Examples:
  multilabel train -c example_config/rcv1/kim_cnn.yml
  multilabel train -c config.yml --epochs 30 --learning-rate 0.003
  multilabel train -c config.yml --trainer-cmd "python3 main.py --config {config}"`,
	RunE: runTrain,
}

func runTrain(cmd *cobra.Command, args []string) error {
	rec, err := loadRecord()
	if err != nil {
		return err
	}
	applyOverrides(cmd, rec)

	if rec.HasDirectives() {
		return fmt.Errorf("%s contains search directives; use \"multilabel search\" to train a search space", rec.Path())
	}
	if err := config.ValidateRecord(rec); err != nil {
		return err
	}
	cfg, err := config.FromRecord(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nTraining cancelled")
		cancel()
	}()

	trainer := &trial.CommandTrainer{
		Argv:    strings.Fields(trainerCmdline),
		Timeout: timeout,
		Logger:  logger,
	}

	runName := cfg.RunName(time.Now())
	logger.Info("starting training run",
		zap.String("run", runName),
		zap.String("data", cfg.DataName),
		zap.String("model", cfg.ModelName))

	started := time.Now()
	res, err := trainer.Train(ctx, rec)
	if err != nil {
		return err
	}

	fmt.Print(metrics.Tabulate(cfg.MonitorMetrics, res.Metrics, "test"))

	recordRun(cfg, runName, &trial.Trial{
		ID:         uuid.NewString(),
		Status:     trial.StatusFinished,
		Metrics:    res.Metrics,
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
	return nil
}

// recordRun stores one finished trial. History failures do not fail the
// run that produced the result.
func recordRun(cfg *config.Config, runName string, t *trial.Trial) {
	path := dbPath
	if path == "" {
		path = cfg.HistoryDBPath()
	}
	st, err := store.Open(path)
	if err != nil {
		logger.Warn("trial history unavailable", zap.String("path", path), zap.Error(err))
		return
	}
	defer st.Close()

	expID, err := st.CreateExperiment(runName, cfg.DataName, cfg.ModelName, cfg.ValMetric)
	if err == nil {
		err = st.RecordTrial(expID, t)
	}
	if err != nil {
		logger.Warn("failed to record trial", zap.String("run", runName), zap.Error(err))
	}
}

func init() {
	trainCmd.Flags().StringVar(&trainerCmdline, "trainer-cmd", defaultTrainerCmd,
		"Trainer command; {config} is replaced with the configuration path")
	addOverrideFlags(trainCmd)
}
