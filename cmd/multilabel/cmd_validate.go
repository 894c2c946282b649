package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
	"github.com/vishalbelsare/LibMultiLabel/internal/search"
	"github.com/vishalbelsare/LibMultiLabel/internal/watcher"
)

var watchFlag bool

// validateCmd checks configuration files without training
var validateCmd = &cobra.Command{
	Use:   "validate [config-files...]",
	Short: "Check configuration files against the parameter schema",
	Long: `Loads each configuration file and reports every schema violation in it:
unknown network parameters, out-of-range values, malformed search
directives, and so on. Search directives are allowed; their candidate
values are checked individually.

With --watch, keeps running and revalidates a file whenever it changes on
disk. Directories can be watched too; every *.yml and *.yaml file in them
is checked.

Exits non-zero if any file is invalid.

Examples:
  multilabel validate example_config/rcv1/kim_cnn.yml
  multilabel validate example_config/rcv1/*.yml
  multilabel validate --watch example_config/`,
	Args: cobra.ArbitraryArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 && cfgFile != "" {
		paths = []string{cfgFile}
	}
	if len(paths) == 0 {
		return fmt.Errorf("no configuration files given")
	}

	if watchFlag {
		return watchConfigs(paths)
	}

	failures := 0
	for _, path := range paths {
		if err := checkConfig(path); err != nil {
			failures++
			fmt.Printf("✗ %s\n%s\n", path, indent(err.Error(), "  "))
		} else {
			fmt.Printf("✓ %s\n", path)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d configurations invalid", failures, len(paths))
	}
	return nil
}

// checkConfig runs the full validation pipeline on one file: load,
// schema check, search-space expansion.
func checkConfig(path string) error {
	rec, err := config.LoadRecord(path)
	if err != nil {
		return err
	}
	if err := config.ValidateRecord(rec); err != nil {
		return err
	}
	if _, err := search.Expand(rec); err != nil {
		return err
	}
	return nil
}

// watchConfigs revalidates the given files and directories on change
// until interrupted.
func watchConfigs(paths []string) error {
	w, err := watcher.New(logger, func(res watcher.Result) {
		if res.Err != nil {
			fmt.Printf("✗ %s: %v\n", res.Path, res.Err)
		} else if res.Combinations > 1 {
			fmt.Printf("✓ %s (%d combinations)\n", res.Path, res.Combinations)
		} else {
			fmt.Printf("✓ %s\n", res.Path)
		}
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	for _, p := range paths {
		if err := w.Add(p); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	w.CheckNow()
	w.Start(ctx)
	fmt.Println("Watching for configuration changes, Ctrl-C to stop")
	<-ctx.Done()
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func init() {
	validateCmd.Flags().BoolVar(&watchFlag, "watch", false, "Keep running and revalidate on file changes")
}
