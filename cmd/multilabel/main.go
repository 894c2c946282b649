package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
	"github.com/vishalbelsare/LibMultiLabel/internal/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	silent  bool
	dbPath  string
	timeout time.Duration

	// Logger
	logger *zap.Logger
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "multilabel",
	Short: "LibMultiLabel - multi-label text classification runner",
	Long: `multilabel drives training and hyperparameter search for multi-label
text classification from YAML configuration files.

A configuration file holds the full parameter surface of one training run.
Parameter values may be search directives, written as

  learning_rate: ['grid_search', [0.001, 0.0005, 0.0001]]

in which case the file describes a whole search space rather than a single
run; the search command trains every combination of candidate values.

Training itself happens in an external trainer process (see --trainer-cmd
on the train and search commands); this tool owns configuration handling,
scheduling, and trial history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lc := config.DefaultConfig().Logging
		if cfgFile != "" {
			// A file that fails to load here is reported by the
			// command itself; the logger falls back to defaults.
			if rec, err := config.LoadRecord(cfgFile); err == nil {
				view := struct {
					Logging config.LoggingConfig `yaml:"logging"`
				}{Logging: lc}
				if err := rec.Decode(&view); err == nil {
					lc = view.Logging
				}
			}
		}
		var err error
		logger, err = logging.New(lc, verbose, silent)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("multilabel %s (commit %s, %s, %s/%s)\n",
			version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "Only log errors")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Trial history database (default: <result_dir>/trials.db)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-trial time limit (0 means none)")

	// Add commands to root
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(flagsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRecord loads the configuration file named by --config.
func loadRecord() (*config.Record, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("no configuration file given; use --config")
	}
	return config.LoadRecord(cfgFile)
}
