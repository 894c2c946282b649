package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
	"github.com/vishalbelsare/LibMultiLabel/internal/metrics"
)

var (
	scoresFile     string
	labelsFile     string
	evalMetrics    []string
	evalThreshold  float64
	evalMulticlass bool
	evalSplit      string
)

// evaluateCmd scores saved predictions offline
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score saved predictions against ground-truth labels",
	Long: `Computes evaluation metrics from files on disk instead of a live training
run.

The scores file holds one sample per line: the predicted score of every
label, space separated. The labels file holds the matching ground truth as
0/1 indicators in the same shape.

With --config, the metric names and decision threshold default to the
monitor_metrics and metric_threshold of that configuration.

Examples:
  multilabel evaluate --scores preds.txt --labels test_labels.txt
  multilabel evaluate --scores preds.txt --labels gold.txt --metrics P@1,P@5,Micro-F1
  multilabel evaluate -c config.yml --scores preds.txt --labels gold.txt`,
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	names := evalMetrics
	threshold := evalThreshold
	if cfgFile != "" {
		cfg, _, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("metrics") {
			names = cfg.MonitorMetrics
		}
		if !cmd.Flags().Changed("threshold") {
			threshold = cfg.MetricThreshold
		}
	}

	preds, err := readScores(scoresFile)
	if err != nil {
		return err
	}
	target, err := readLabels(labelsFile)
	if err != nil {
		return err
	}
	if len(preds) != len(target) {
		return fmt.Errorf("%s has %d samples but %s has %d", scoresFile, len(preds), labelsFile, len(target))
	}

	col, err := metrics.NewCollection(names, threshold, evalMulticlass)
	if err != nil {
		return err
	}
	if err := col.Update(preds, target); err != nil {
		return err
	}
	fmt.Print(metrics.Tabulate(col.Names(), col.Compute(), evalSplit))
	return nil
}

// readScores reads one row of label scores per line.
func readScores(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for i, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

// readLabels reads one row of 0/1 label indicators per line.
func readLabels(path string) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]int
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]int, len(fields))
		for i, s := range fields {
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

func init() {
	evaluateCmd.Flags().StringVar(&scoresFile, "scores", "", "File of predicted label scores, one sample per line (required)")
	evaluateCmd.Flags().StringVar(&labelsFile, "labels", "", "File of 0/1 ground-truth indicators, one sample per line (required)")
	evaluateCmd.Flags().StringSliceVar(&evalMetrics, "metrics", []string{"P@1", "P@3", "P@5"}, "Metrics to compute")
	evaluateCmd.Flags().Float64Var(&evalThreshold, "threshold", 0.5, "Decision threshold for F1 metrics")
	evaluateCmd.Flags().BoolVar(&evalMulticlass, "multiclass", false, "Predict by argmax instead of threshold")
	evaluateCmd.Flags().StringVar(&evalSplit, "split", "test", "Dataset split name shown in the result table")
	evaluateCmd.MarkFlagRequired("scores")
	evaluateCmd.MarkFlagRequired("labels")
}
