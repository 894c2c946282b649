package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
)

// overrideKeys maps flag names to the configuration parameters they
// override.
var overrideKeys = map[string]string{
	"data-name":        "data_name",
	"training-file":    "training_file",
	"test-file":        "test_file",
	"val-file":         "val_file",
	"model-name":       "model_name",
	"seed":             "seed",
	"epochs":           "epochs",
	"batch-size":       "batch_size",
	"optimizer":        "optimizer",
	"learning-rate":    "learning_rate",
	"weight-decay":     "weight_decay",
	"patience":         "patience",
	"eval-batch-size":  "eval_batch_size",
	"monitor-metrics":  "monitor_metrics",
	"val-metric":       "val_metric",
	"metric-threshold": "metric_threshold",
	"num-samples":      "num_samples",
	"max-parallel":     "max_parallel",
	"cpu":              "cpu",
	"result-dir":       "result_dir",
	"checkpoint-dir":   "checkpoint_dir",
}

// addOverrideFlags registers per-parameter flags on a command. Each one
// overrides the matching configuration file entry when the user sets it.
func addOverrideFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	f := cmd.Flags()
	f.String("data-name", d.DataName, "Dataset name")
	f.String("training-file", "", "Path to the training data")
	f.String("test-file", "", "Path to the test data")
	f.String("val-file", "", "Path to the validation data")
	f.String("model-name", d.ModelName, "Model architecture")
	f.Int("seed", d.Seed, "Random seed")
	f.Int("epochs", d.Epochs, "Maximum number of training epochs")
	f.Int("batch-size", d.BatchSize, "Training batch size")
	f.String("optimizer", d.Optimizer, "Optimizer (adam, adamw, adamax, sgd)")
	f.Float64("learning-rate", d.LearningRate, "Optimizer learning rate")
	f.Float64("weight-decay", d.WeightDecay, "Optimizer weight decay")
	f.Int("patience", d.Patience, "Epochs without improvement before early stopping")
	f.Int("eval-batch-size", d.EvalBatchSize, "Evaluation batch size")
	f.StringSlice("monitor-metrics", d.MonitorMetrics, "Metrics reported after evaluation")
	f.String("val-metric", d.ValMetric, "Metric that ranks trials")
	f.Float64("metric-threshold", d.MetricThreshold, "Decision threshold for F1 metrics")
	f.Int("num-samples", d.NumSamples, "Times each hyperparameter combination is trained")
	f.Int("max-parallel", d.MaxParallel, "Concurrent trials")
	f.Bool("cpu", false, "Train on CPU even when a GPU is available")
	f.String("result-dir", d.ResultDir, "Directory for run outputs")
	f.String("checkpoint-dir", d.CheckpointDir, "Directory for model checkpoints")
}

// applyOverrides writes the flags the user actually set into the
// record. Untouched flags leave the file's values alone.
func applyOverrides(cmd *cobra.Command, rec *config.Record) {
	f := cmd.Flags()
	f.Visit(func(fl *pflag.Flag) {
		key, ok := overrideKeys[fl.Name]
		if !ok {
			return
		}
		switch fl.Value.Type() {
		case "int":
			v, _ := f.GetInt(fl.Name)
			rec.SetInt(key, v)
		case "float64":
			v, _ := f.GetFloat64(fl.Name)
			rec.SetFloat(key, v)
		case "bool":
			v, _ := f.GetBool(fl.Name)
			rec.SetBool(key, v)
		case "stringSlice":
			v, _ := f.GetStringSlice(fl.Name)
			rec.SetStrings(key, v)
		default:
			rec.SetString(key, fl.Value.String())
		}
	})
}
