package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the typed view of a concrete configuration record: the full
// parameter surface of one training run. Records that still contain
// search directives cannot be decoded into a Config; expand them first.
type Config struct {
	// Data
	DataName          string  `yaml:"data_name"`
	TrainingFile      string  `yaml:"training_file"`
	TestFile          string  `yaml:"test_file"`
	ValFile           string  `yaml:"val_file"`
	ValSize           float64 `yaml:"val_size"`
	MinVocabFreq      int     `yaml:"min_vocab_freq"`
	MaxSeqLength      int     `yaml:"max_seq_length"`
	IncludeTestLabels bool    `yaml:"include_test_labels"`
	RemoveNoLabelData bool    `yaml:"remove_no_label_data"`
	Shuffle           bool    `yaml:"shuffle"`

	// Training
	Seed         int     `yaml:"seed"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	Optimizer    string  `yaml:"optimizer"` // adam, adamw, adamax, sgd
	LearningRate float64 `yaml:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`
	Momentum     float64 `yaml:"momentum"`
	Patience     int     `yaml:"patience"`
	Silent       bool    `yaml:"silent"`
	CPU          bool    `yaml:"cpu"`
	DataWorkers  int     `yaml:"data_workers"`

	// Evaluation
	EvalBatchSize   int      `yaml:"eval_batch_size"`
	MonitorMetrics  []string `yaml:"monitor_metrics"`
	ValMetric       string   `yaml:"val_metric"`
	MetricThreshold float64  `yaml:"metric_threshold"`

	// Model
	ModelName     string         `yaml:"model_name"`
	InitWeight    string         `yaml:"init_weight"`
	NetworkConfig map[string]any `yaml:"network_config"`

	// Pretrained embeddings
	VocabFile      string `yaml:"vocab_file"`
	EmbedFile      string `yaml:"embed_file"`
	EmbedCacheDir  string `yaml:"embed_cache_dir"`
	NormalizeEmbed bool   `yaml:"normalize_embed"`

	// Checkpointing and prediction output
	CheckpointDir    string `yaml:"checkpoint_dir"`
	ResultDir        string `yaml:"result_dir"`
	SaveKPredictions int    `yaml:"save_k_predictions"`
	PredictOutPath   string `yaml:"predict_out_path"`

	// Hyperparameter search
	SearchAlg       string         `yaml:"search_alg"`
	NumSamples      int            `yaml:"num_samples"`
	Scheduler       map[string]any `yaml:"scheduler"`
	NoMergeTrainVal bool           `yaml:"no_merge_train_val"`
	CPUsPerTrial    int            `yaml:"cpus_per_trial"`
	GPUsPerTrial    int            `yaml:"gpus_per_trial"`
	MaxParallel     int            `yaml:"max_parallel"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// DefaultConfig returns the trainer defaults. A loaded file overrides
// only the parameters it names.
func DefaultConfig() *Config {
	return &Config{
		DataName:     "unnamed_data",
		ValSize:      0.2,
		MinVocabFreq: 1,
		MaxSeqLength: 500,
		Shuffle:      true,

		Seed:         1337,
		Epochs:       10000, // early stopping via patience ends training long before this
		BatchSize:    16,
		Optimizer:    "adam",
		LearningRate: 0.0001,
		Momentum:     0.9,
		Patience:     5,
		DataWorkers:  4,

		EvalBatchSize:   256,
		MonitorMetrics:  []string{"P@1", "P@3", "P@5"},
		ValMetric:       "P@1",
		MetricThreshold: 0.5,

		ModelName:  "KimCNN",
		InitWeight: "kaiming_uniform",

		EmbedFile: "glove.6B.300d",

		CheckpointDir:  "runs",
		ResultDir:      "runs",
		PredictOutPath: "predictions.txt",

		SearchAlg:    "basic_variant",
		NumSamples:   1,
		CPUsPerTrial: 4,
		GPUsPerTrial: 1,
		MaxParallel:  1,

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a concrete configuration file: defaults first, then the
// file, then environment overrides. It returns the typed view together
// with the underlying record.
func Load(path string) (*Config, *Record, error) {
	rec, err := LoadRecord(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := FromRecord(rec)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rec, nil
}

// FromRecord decodes a concrete record over the defaults and applies
// environment overrides.
func FromRecord(rec *Record) (*Config, error) {
	if rec.HasDirectives() {
		return nil, fmt.Errorf("config contains search directives; expand the search space first")
	}
	cfg := DefaultConfig()
	if err := rec.Decode(cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("MULTILABEL_RESULT_DIR"); dir != "" {
		c.ResultDir = dir
	}
	if dir := os.Getenv("MULTILABEL_CHECKPOINT_DIR"); dir != "" {
		c.CheckpointDir = dir
	}
	if dir := os.Getenv("MULTILABEL_EMBED_CACHE"); dir != "" {
		c.EmbedCacheDir = dir
	}
}

// RunName builds the canonical run name for this configuration:
// dataset, model, and a second-resolution timestamp.
func (c *Config) RunName(now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", c.DataName, c.ModelName, now.Format("20060102150405"))
}

// RunDir returns the directory that holds one run's outputs.
func (c *Config) RunDir(runName string) string {
	return filepath.Join(c.ResultDir, runName)
}

// HistoryDBPath returns the SQLite file that records trial history.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.ResultDir, "trials.db")
}
