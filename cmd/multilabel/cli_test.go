package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vishalbelsare/LibMultiLabel/internal/store"
	"github.com/vishalbelsare/LibMultiLabel/internal/trial"
)

// captureOutput runs fn with stdout redirected and returns what it
// printed.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	runErr := fn()
	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatal(err)
	}
	r.Close()
	return buf.String(), runErr
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeTrainer creates a stand-in trainer script that reports fixed
// metrics.
func writeTrainer(t *testing.T, dir, metricsLine string) string {
	t.Helper()
	path := filepath.Join(dir, "fake_trainer.sh")
	script := "#!/bin/sh\necho '" + metricsLine + "'\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateCmd(t *testing.T) {
	logger = zap.NewNop()
	dir := t.TempDir()
	valid := writeFile(t, dir, "valid.yml", "data_name: rcv1\nbatch_size: 16\n")
	invalid := writeFile(t, dir, "invalid.yml", "batch_size: -1\noptimizer: sgdm\n")

	cmd := &cobra.Command{}

	out, err := captureOutput(t, func() error { return runValidate(cmd, []string{valid}) })
	if err != nil {
		t.Fatalf("runValidate failed on a valid file: %v", err)
	}
	if !strings.Contains(out, "✓") {
		t.Errorf("expected a check mark, got %q", out)
	}

	out, err = captureOutput(t, func() error { return runValidate(cmd, []string{valid, invalid}) })
	if err == nil {
		t.Fatal("expected an error for the invalid file")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "✗") || !strings.Contains(out, "invalid batch_size") {
		t.Errorf("expected the violation in the output, got %q", out)
	}

	cfgFile = ""
	if err := runValidate(cmd, nil); err == nil {
		t.Error("expected an error when no files are given")
	}
}

func TestExpandCmd(t *testing.T) {
	logger = zap.NewNop()
	dir := t.TempDir()
	cfgFile = writeFile(t, dir, "grid.yml",
		"data_name: rcv1\n"+
			"learning_rate: ['grid_search', [0.01, 0.001, 0.0001]]\n"+
			"batch_size: ['choice', [16, 32]]\n")
	defer func() { cfgFile = "" }()

	cmd := &cobra.Command{}

	out, err := captureOutput(t, func() error { return runExpand(cmd, nil) })
	if err != nil {
		t.Fatalf("runExpand failed: %v", err)
	}
	if !strings.Contains(out, "6 combinations from 2 search parameters") {
		t.Errorf("unexpected summary: %q", out)
	}
	if !strings.Contains(out, "grid_search") || !strings.Contains(out, "choice") {
		t.Errorf("expected the directive list, got %q", out)
	}

	expandParams = true
	out, err = captureOutput(t, func() error { return runExpand(cmd, nil) })
	expandParams = false
	if err != nil {
		t.Fatalf("runExpand --params failed: %v", err)
	}
	if !strings.Contains(out, "learning_rate") || !strings.Contains(out, "0.0001") {
		t.Errorf("expected the assignment table, got %q", out)
	}

	expandFull = true
	out, err = captureOutput(t, func() error { return runExpand(cmd, nil) })
	expandFull = false
	if err != nil {
		t.Fatalf("runExpand --full failed: %v", err)
	}
	if got := strings.Count(out, "---"); got != 5 {
		t.Errorf("expected 5 document separators for 6 documents, got %d", got)
	}
	if !strings.Contains(out, "learning_rate: 0.01") {
		t.Errorf("expected concrete values in the dump, got %q", out)
	}
}

func TestTrainCmd(t *testing.T) {
	logger = zap.NewNop()
	dir := t.TempDir()
	cfgFile = writeFile(t, dir, "train.yml", "data_name: rcv1\nmodel_name: KimCNN\nepochs: 5\n")
	dbPath = filepath.Join(dir, "trials.db")
	trainerCmdline = writeTrainer(t, dir, `METRICS {"P@1": 0.858, "P@3": 0.712, "P@5": 0.501}`) + " {config}"
	defer func() {
		cfgFile = ""
		dbPath = ""
		trainerCmdline = defaultTrainerCmd
	}()

	out, err := captureOutput(t, func() error { return runTrain(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runTrain failed: %v", err)
	}
	if !strings.Contains(out, "test dataset evaluation result") {
		t.Errorf("expected the evaluation table, got %q", out)
	}
	if !strings.Contains(out, "85.8000") {
		t.Errorf("expected P@1 as a percentage, got %q", out)
	}

	// The run is in the history
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	exps, err := st.ListExperiments()
	if err != nil {
		t.Fatal(err)
	}
	if len(exps) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(exps))
	}
	if !strings.HasPrefix(exps[0].Name, "rcv1_KimCNN_") {
		t.Errorf("unexpected run name %q", exps[0].Name)
	}
	trials, err := st.ListTrials(exps[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 1 || trials[0].Status != trial.StatusFinished {
		t.Fatalf("expected 1 finished trial, got %+v", trials)
	}
	if trials[0].Metrics["P@1"] != 0.858 {
		t.Errorf("P@1 = %v, want 0.858", trials[0].Metrics["P@1"])
	}
}

func TestTrainRejectsSearchSpace(t *testing.T) {
	logger = zap.NewNop()
	dir := t.TempDir()
	cfgFile = writeFile(t, dir, "grid.yml", "learning_rate: ['grid_search', [0.01, 0.001]]\n")
	defer func() { cfgFile = "" }()

	err := runTrain(&cobra.Command{}, nil)
	if err == nil {
		t.Fatal("expected an error for a search-space configuration")
	}
	if !strings.Contains(err.Error(), "multilabel search") {
		t.Errorf("error should point at the search command, got %v", err)
	}
}

func TestSearchCmd(t *testing.T) {
	logger = zap.NewNop()
	dir := t.TempDir()
	cfgFile = writeFile(t, dir, "grid.yml",
		"data_name: rcv1\n"+
			"model_name: KimCNN\n"+
			"val_metric: P@1\n"+
			"monitor_metrics: [P@1, P@3]\n"+
			"learning_rate: ['grid_search', [0.01, 0.001]]\n")
	dbPath = filepath.Join(dir, "trials.db")
	trainerCmdline = writeTrainer(t, dir, `METRICS {"P@1": 0.5}`) + " {config}"
	experimentName = "cli-test-sweep"
	defer func() {
		cfgFile = ""
		dbPath = ""
		trainerCmdline = defaultTrainerCmd
		experimentName = ""
	}()

	out, err := captureOutput(t, func() error { return runSearch(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runSearch failed: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "2 combinations") {
		t.Errorf("expected the sweep size, got %q", out)
	}
	if !strings.Contains(out, "Best trial by P@1") {
		t.Errorf("expected a best-trial report, got %q", out)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	exp, err := st.ExperimentByName("cli-test-sweep")
	if err != nil {
		t.Fatal(err)
	}
	if exp == nil {
		t.Fatal("experiment was not recorded")
	}
	trials, err := st.ListTrials(exp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 2 {
		t.Fatalf("expected 2 trials, got %d", len(trials))
	}
	for _, tr := range trials {
		if tr.Status != trial.StatusFinished {
			t.Errorf("trial %d.%d ended %s: %s", tr.Index, tr.Repeat, tr.Status, tr.Error)
		}
	}
}

func TestEvaluateCmd(t *testing.T) {
	logger = zap.NewNop()
	dir := t.TempDir()
	scoresFile = writeFile(t, dir, "scores.txt", "0.9 0.1\n0.2 0.8\n")
	labelsFile = writeFile(t, dir, "labels.txt", "1 0\n0 1\n")
	oldMetrics := evalMetrics
	evalMetrics = []string{"P@1"}
	defer func() {
		scoresFile = ""
		labelsFile = ""
		evalMetrics = oldMetrics
	}()

	out, err := captureOutput(t, func() error { return runEvaluate(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runEvaluate failed: %v", err)
	}
	if !strings.Contains(out, "100.0000") {
		t.Errorf("P@1 should be perfect for matching rows, got %q", out)
	}

	// Mismatched sample counts are an error
	labelsFile = writeFile(t, dir, "short.txt", "1 0\n")
	if err := runEvaluate(&cobra.Command{}, nil); err == nil {
		t.Error("expected an error for mismatched files")
	}
}

func TestHistoryCmd(t *testing.T) {
	logger = zap.NewNop()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "trials.db")
	defer func() {
		dbPath = ""
		bestFlag = false
	}()

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	expID, err := st.CreateExperiment("hist-exp", "rcv1", "KimCNN", "P@1")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	err = st.RecordTrial(expID, &trial.Trial{
		ID:         "t-1",
		Params:     []string{"0.01"},
		Status:     trial.StatusFinished,
		Metrics:    map[string]float64{"P@1": 0.83},
		StartedAt:  now,
		FinishedAt: now.Add(3 * time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	cmd := &cobra.Command{}

	out, err := captureOutput(t, func() error { return runHistory(cmd, nil) })
	if err != nil {
		t.Fatalf("runHistory failed: %v", err)
	}
	if !strings.Contains(out, "hist-exp") {
		t.Errorf("expected the experiment list, got %q", out)
	}

	out, err = captureOutput(t, func() error { return runHistory(cmd, []string{"hist-exp"}) })
	if err != nil {
		t.Fatalf("runHistory with an experiment failed: %v", err)
	}
	if !strings.Contains(out, "finished") || !strings.Contains(out, "0.8300") {
		t.Errorf("expected the trial table, got %q", out)
	}

	bestFlag = true
	out, err = captureOutput(t, func() error { return runHistory(cmd, []string{"hist-exp"}) })
	bestFlag = false
	if err != nil {
		t.Fatalf("runHistory --best failed: %v", err)
	}
	if !strings.Contains(out, "Best trial of hist-exp") {
		t.Errorf("expected the best trial, got %q", out)
	}

	if err := runHistory(cmd, []string{"no-such-exp"}); err == nil {
		t.Error("expected an error for an unknown experiment")
	}
}

func TestHistoryCmdMissingDatabase(t *testing.T) {
	logger = zap.NewNop()
	dbPath = filepath.Join(t.TempDir(), "nope.db")
	defer func() { dbPath = "" }()

	err := runHistory(&cobra.Command{}, nil)
	if err == nil || !strings.Contains(err.Error(), "no trial history") {
		t.Errorf("expected a missing-history error, got %v", err)
	}
}

func TestFlagTable(t *testing.T) {
	out := flagTable(rootCmd)
	if !strings.Contains(out, "Do not modify this file") {
		t.Error("missing the generated-file header")
	}
	if !strings.Contains(out, `-c \-\-config`) {
		t.Errorf("missing the escaped config flag:\n%s", out)
	}
	if !strings.Contains(out, `\-\-trainer-cmd`) {
		t.Errorf("missing the trainer-cmd flag:\n%s", out)
	}
	// reST simple tables are framed by ruler lines
	if !strings.Contains(out, "==") {
		t.Error("missing table rulers")
	}
}
