package trial

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
)

// metricsPrefix marks the stdout line a trainer uses to report results,
// e.g. `METRICS {"P@1": 0.858, "Loss": 0.042}`. The last such line wins.
const metricsPrefix = "METRICS "

// CommandTrainer runs an external training command once per trial. The
// trial's record is written to a temporary YAML file whose path replaces
// the {config} placeholder in Argv.
type CommandTrainer struct {
	Argv    []string
	Dir     string        // working directory, also holds the temp config
	Timeout time.Duration // per trial, zero means no limit
	Logger  *zap.Logger
}

// Train writes the record to disk, runs the command, and parses the
// reported metrics from its standard output.
func (t *CommandTrainer) Train(ctx context.Context, rec *config.Record) (*Result, error) {
	if len(t.Argv) == 0 {
		return nil, errors.New("no trainer command configured")
	}
	log := t.Logger
	if log == nil {
		log = zap.NewNop()
	}

	f, err := os.CreateTemp(t.Dir, "trial_*.yml")
	if err != nil {
		return nil, fmt.Errorf("failed to create trial config: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)
	if err := rec.Save(path); err != nil {
		return nil, err
	}

	argv := make([]string, len(t.Argv))
	for i, a := range t.Argv {
		argv[i] = strings.ReplaceAll(a, "{config}", path)
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if t.Dir != "" {
		cmd.Dir = t.Dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("running trainer", zap.Strings("argv", argv))
	start := time.Now()
	runErr := cmd.Run()
	log.Debug("trainer exited",
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(runErr))

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if tail := lastLine(&stderr); tail != "" {
			return nil, fmt.Errorf("trainer failed: %w: %s", runErr, tail)
		}
		return nil, fmt.Errorf("trainer failed: %w", runErr)
	}

	metrics, err := parseMetrics(&stdout)
	if err != nil {
		return nil, err
	}
	return &Result{Metrics: metrics}, nil
}

// parseMetrics scans trainer output for METRICS lines and decodes the
// last one.
func parseMetrics(out *bytes.Buffer) (map[string]float64, error) {
	var raw string
	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, metricsPrefix) {
			raw = strings.TrimPrefix(line, metricsPrefix)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trainer output: %w", err)
	}
	if raw == "" {
		return nil, errors.New("trainer reported no metrics")
	}
	var metrics map[string]float64
	if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
		return nil, fmt.Errorf("failed to parse trainer metrics: %w", err)
	}
	return metrics, nil
}

func lastLine(buf *bytes.Buffer) string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
