package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
	"github.com/vishalbelsare/LibMultiLabel/internal/metrics"
	"github.com/vishalbelsare/LibMultiLabel/internal/store"
	"github.com/vishalbelsare/LibMultiLabel/internal/trial"
)

var (
	bestFlag   bool
	bestMetric string
)

// historyCmd inspects recorded experiments and trials
var historyCmd = &cobra.Command{
	Use:   "history [experiment]",
	Short: "Show recorded experiments and trials",
	Long: `Reads the trial history database written by the train and search commands.

Without arguments, lists all experiments. With an experiment name, lists its
trials. With --best, shows only the best trial of that experiment by the
chosen metric.

Examples:
  multilabel history
  multilabel history rcv1_KimCNN
  multilabel history rcv1_KimCNN --best
  multilabel history rcv1_KimCNN --best --metric Loss`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := dbPath
	if path == "" {
		dir := "runs"
		if cfgFile != "" {
			// Search configurations may carry directives, so read the
			// record instead of the typed view.
			rec, err := config.LoadRecord(cfgFile)
			if err != nil {
				return err
			}
			dir = rec.GetString("result_dir", dir)
		}
		path = filepath.Join(dir, "trials.db")
	}
	// Opening would create an empty database; an absent file just means
	// nothing ran yet.
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no trial history at %s", path)
	}

	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 0 {
		return printExperiments(st)
	}

	exp, err := st.ExperimentByName(args[0])
	if err != nil {
		return err
	}
	if exp == nil {
		return fmt.Errorf("no experiment named %q in %s", args[0], path)
	}
	if bestFlag {
		return printBest(st, exp)
	}
	return printTrials(st, exp)
}

func printExperiments(st *store.Store) error {
	exps, err := st.ListExperiments()
	if err != nil {
		return err
	}
	if len(exps) == 0 {
		fmt.Println("No experiments recorded.")
		return nil
	}
	rows := make([][]string, 0, len(exps))
	for _, e := range exps {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Name,
			e.DataName,
			e.ModelName,
			e.ValMetric,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Print(renderTable([]string{"ID", "EXPERIMENT", "DATA", "MODEL", "METRIC", "CREATED"}, rows))
	return nil
}

func printTrials(st *store.Store, exp *store.Experiment) error {
	trials, err := st.ListTrials(exp.ID)
	if err != nil {
		return err
	}
	if len(trials) == 0 {
		fmt.Printf("Experiment %s has no trials.\n", exp.Name)
		return nil
	}
	metricCol := exp.ValMetric
	if metricCol == "" {
		metricCol = "P@1"
	}
	rows := make([][]string, 0, len(trials))
	for _, t := range trials {
		rows = append(rows, []string{
			fmt.Sprintf("%d.%d", t.Index, t.Repeat),
			string(t.Status),
			strings.Join(t.Params, " "),
			trialMetric(t, metricCol),
			trialDuration(t),
			t.Error,
		})
	}
	fmt.Printf("Experiment %s (%s, %s)\n", exp.Name, exp.DataName, exp.ModelName)
	fmt.Print(renderTable([]string{"TRIAL", "STATUS", "PARAMS", metricCol, "DURATION", "ERROR"}, rows))
	return nil
}

func printBest(st *store.Store, exp *store.Experiment) error {
	metric := bestMetric
	if metric == "" {
		metric = exp.ValMetric
	}
	if metric == "" {
		metric = "P@1"
	}
	mode := metrics.ModeFor(metric)

	t, err := st.BestTrial(exp.ID, metric, mode)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("experiment %s has no finished trial reporting %s", exp.Name, metric)
	}

	fmt.Printf("Best trial of %s by %s (%s): trial %d.%d\n", exp.Name, metric, mode, t.Index, t.Repeat)
	for _, p := range t.Params {
		fmt.Printf("  %s\n", p)
	}
	for _, name := range sortedMetricNames(t) {
		fmt.Printf("  %s = %.4f\n", name, t.Metrics[name])
	}
	return nil
}

func trialMetric(t store.TrialRow, name string) string {
	v, ok := t.Metrics[name]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func trialDuration(t store.TrialRow) string {
	if t.Status != trial.StatusFinished && t.Status != trial.StatusFailed {
		return "-"
	}
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return "-"
	}
	return t.FinishedAt.Sub(t.StartedAt).Round(10 * time.Millisecond).String()
}

func sortedMetricNames(t *store.TrialRow) []string {
	names := make([]string, 0, len(t.Metrics))
	for name := range t.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	historyCmd.Flags().BoolVar(&bestFlag, "best", false, "Show only the best trial of the experiment")
	historyCmd.Flags().StringVar(&bestMetric, "metric", "", "Metric that ranks trials (default: the experiment's val_metric)")
}
