package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vishalbelsare/LibMultiLabel/internal/metrics"
)

// Parameter vocabularies the validator enforces.
var (
	ValidModels      = []string{"AttentionXML", "BiGRULWAN", "BiLSTMLWAN", "BiLSTMLWMHAN", "CNNLWAN", "KimCNN", "XMLCNN"}
	ValidOptimizers  = []string{"adam", "adamw", "adamax", "sgd"}
	ValidInitWeights = []string{"kaiming_uniform", "kaiming_normal", "normal", "uniform", "xavier_normal", "xavier_uniform"}
	ValidActivations = []string{"elu", "gelu", "leaky_relu", "mish", "relu", "sigmoid", "tanh"}
	ValidSearchAlgs  = []string{"basic_variant", "bayesopt", "optuna"}
	ValidLogLevels   = []string{"debug", "info", "warn", "error"}
	ValidLogFormats  = []string{"json", "console"}
)

// networkParams lists the network_config parameters each model accepts.
var networkParams = map[string]map[string]bool{
	"AttentionXML": set("embed_dropout", "encoder_dropout", "post_encoder_dropout", "rnn_dim", "rnn_layers", "linear_size", "freeze_embed_training"),
	"BiGRULWAN":    set("embed_dropout", "encoder_dropout", "post_encoder_dropout", "rnn_dim", "rnn_layers"),
	"BiLSTMLWAN":   set("embed_dropout", "encoder_dropout", "post_encoder_dropout", "rnn_dim", "rnn_layers"),
	"BiLSTMLWMHAN": set("embed_dropout", "encoder_dropout", "post_encoder_dropout", "rnn_dim", "rnn_layers", "num_heads", "attention_dropout"),
	"CNNLWAN":      set("embed_dropout", "post_encoder_dropout", "filter_sizes", "num_filter_per_size", "activation"),
	"KimCNN":       set("embed_dropout", "encoder_dropout", "post_encoder_dropout", "filter_sizes", "num_filter_per_size", "activation"),
	"XMLCNN":       set("embed_dropout", "post_encoder_dropout", "filter_sizes", "num_filter_per_size", "num_pool", "hidden_dim", "activation"),
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

type ruleFunc func(n *yaml.Node) error

type paramRule struct {
	key  string
	rule ruleFunc
}

// topLevelRules holds the per-parameter checks in a fixed order so
// violations are reported deterministically.
var topLevelRules = []paramRule{
	{"val_size", openUnit()},
	{"min_vocab_freq", intMin(1)},
	{"max_seq_length", intMin(1)},
	{"seed", integer()},
	{"epochs", intMin(1)},
	{"batch_size", intMin(1)},
	{"optimizer", oneOf(ValidOptimizers)},
	{"learning_rate", floatPositive()},
	{"weight_decay", floatMin(0)},
	{"momentum", closedUnit()},
	{"patience", intMin(1)},
	{"data_workers", intMin(0)},
	{"eval_batch_size", intMin(1)},
	{"monitor_metrics", metricList()},
	{"val_metric", metricName()},
	{"metric_threshold", openUnit()},
	{"model_name", oneOf(ValidModels)},
	{"init_weight", oneOf(ValidInitWeights)},
	{"save_k_predictions", intMin(0)},
	{"search_alg", oneOf(ValidSearchAlgs)},
	{"num_samples", intMin(1)},
	{"cpus_per_trial", intMin(1)},
	{"gpus_per_trial", intMin(0)},
	{"max_parallel", intMin(1)},
}

// networkRules holds the checks for network_config parameters. Which
// keys are accepted at all depends on the model, see networkParams.
var networkRules = map[string]ruleFunc{
	"embed_dropout":         closedUnit(),
	"encoder_dropout":       closedUnit(),
	"post_encoder_dropout":  closedUnit(),
	"attention_dropout":     closedUnit(),
	"rnn_dim":               evenInt(2),
	"rnn_layers":            intMin(1),
	"filter_sizes":          intList(1, 1),
	"num_filter_per_size":   intMin(1),
	"num_pool":              intMin(0),
	"hidden_dim":            intMin(1),
	"num_heads":             intMin(1),
	"linear_size":           intList(1, 1),
	"activation":            oneOf(ValidActivations),
	"freeze_embed_training": boolean(),
}

// ValidateRecord checks every parameter the trainer would refuse,
// including each candidate value of a search directive. All violations
// are reported together, not only the first.
func ValidateRecord(rec *Record) error {
	v := &validator{}
	for _, pr := range topLevelRules {
		if n, ok := rec.Get(pr.key); ok {
			v.apply(pr.key, n, pr.rule)
		}
	}
	v.networkConfig(rec)
	v.crossChecks(rec)
	v.logging(rec)
	return v.err()
}

// Validate checks a concrete configuration against the same rules the
// record validator applies, with defaults already resolved.
func (c *Config) Validate() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	rec, err := Parse(data)
	if err != nil {
		return err
	}
	return ValidateRecord(rec)
}

type validator struct {
	violations []error
}

func (v *validator) addf(param, format string, args ...any) {
	v.violations = append(v.violations, &ValidationError{Param: param, Msg: fmt.Sprintf(format, args...)})
}

func (v *validator) err() error {
	if len(v.violations) == 0 {
		return nil
	}
	return errors.Join(v.violations...)
}

// apply runs a rule against a value node. Directive candidates are each
// checked in place of the directive itself, so a bad grid value fails at
// load time instead of in the middle of a sweep.
func (v *validator) apply(param string, n *yaml.Node, rule ruleFunc) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if _, candidates, ok := DirectiveParts(n); ok {
		for i, c := range candidates {
			v.applyOne(fmt.Sprintf("%s[%d]", param, i), c, rule)
		}
		return
	}
	v.applyOne(param, n, rule)
}

func (v *validator) applyOne(param string, n *yaml.Node, rule ruleFunc) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return // null means unset
	}
	if err := rule(n); err != nil {
		v.addf(param, "%s", err.Error())
	}
}

func (v *validator) networkConfig(rec *Record) {
	nc, ok := rec.Get("network_config")
	if !ok {
		return
	}
	if nc.Kind == yaml.AliasNode {
		nc = nc.Alias
	}
	if nc.Kind == yaml.ScalarNode && nc.Tag == "!!null" {
		return
	}
	if nc.Kind != yaml.MappingNode {
		v.addf("network_config", "must be a mapping")
		return
	}

	// Unknown keys are checked against the model's parameter set. When
	// model_name is itself being searched over, the check is skipped.
	model := ""
	if n, ok := rec.Get("model_name"); !ok {
		model = "KimCNN" // trainer default
	} else if n.Kind == yaml.ScalarNode && n.Tag != "!!null" {
		model = n.Value
	}
	allowed := networkParams[model]

	for i := 0; i+1 < len(nc.Content); i += 2 {
		key := nc.Content[i].Value
		val := nc.Content[i+1]
		param := "network_config." + key
		if allowed != nil && !allowed[key] {
			v.addf(param, "unknown parameter for model %s", model)
			continue
		}
		if rule, ok := networkRules[key]; ok {
			v.apply(param, val, rule)
		}
	}
}

// crossChecks covers constraints that span parameters. They only fire
// when both sides are concrete scalars; directive combinations are
// checked per candidate by the single-parameter rules.
func (v *validator) crossChecks(rec *Record) {
	vm, vok := rec.Get("val_metric")
	mm, mok := rec.Get("monitor_metrics")
	if vok && mok && vm.Kind == yaml.ScalarNode && vm.Tag != "!!null" &&
		mm.Kind == yaml.SequenceNode && !IsDirective(mm) {
		found := false
		for _, m := range mm.Content {
			if m.Kind == yaml.ScalarNode && m.Value == vm.Value {
				found = true
				break
			}
		}
		if !found {
			v.addf("val_metric", "%q is not among monitor_metrics", vm.Value)
		}
	}

	nh, nok := rec.Lookup("network_config", "num_heads")
	rd, rok := rec.Lookup("network_config", "rnn_dim")
	if nok && rok && nh.Kind == yaml.ScalarNode && rd.Kind == yaml.ScalarNode {
		heads, herr := strconv.ParseInt(nh.Value, 10, 64)
		dim, derr := strconv.ParseInt(rd.Value, 10, 64)
		if herr == nil && derr == nil && heads > 0 && dim%heads != 0 {
			v.addf("network_config.num_heads", "rnn_dim %d is not divisible by num_heads %d", dim, heads)
		}
	}
}

func (v *validator) logging(rec *Record) {
	if n, ok := rec.Lookup("logging", "level"); ok {
		v.apply("logging.level", n, oneOf(ValidLogLevels))
	}
	if n, ok := rec.Lookup("logging", "format"); ok {
		v.apply("logging.format", n, oneOf(ValidLogFormats))
	}
}

// Rule constructors.

func oneOf(valid []string) ruleFunc {
	return func(n *yaml.Node) error {
		s, err := nodeString(n)
		if err != nil {
			return err
		}
		for _, v := range valid {
			if s == v {
				return nil
			}
		}
		return fmt.Errorf("unsupported value %q (valid: %s)", s, strings.Join(valid, ", "))
	}
}

func integer() ruleFunc {
	return func(n *yaml.Node) error {
		_, err := nodeInt(n)
		return err
	}
}

func intMin(min int64) ruleFunc {
	return func(n *yaml.Node) error {
		v, err := nodeInt(n)
		if err != nil {
			return err
		}
		if v < min {
			return fmt.Errorf("must be at least %d, got %d", min, v)
		}
		return nil
	}
}

// evenInt requires an even integer of at least min. Bidirectional
// encoders allocate half the dimension per direction.
func evenInt(min int64) ruleFunc {
	return func(n *yaml.Node) error {
		v, err := nodeInt(n)
		if err != nil {
			return err
		}
		if v < min {
			return fmt.Errorf("must be at least %d, got %d", min, v)
		}
		if v%2 != 0 {
			return fmt.Errorf("must be even, got %d", v)
		}
		return nil
	}
}

func floatPositive() ruleFunc {
	return func(n *yaml.Node) error {
		v, err := nodeFloat(n)
		if err != nil {
			return err
		}
		if v <= 0 {
			return fmt.Errorf("must be greater than 0, got %v", v)
		}
		return nil
	}
}

func floatMin(min float64) ruleFunc {
	return func(n *yaml.Node) error {
		v, err := nodeFloat(n)
		if err != nil {
			return err
		}
		if v < min {
			return fmt.Errorf("must be at least %v, got %v", min, v)
		}
		return nil
	}
}

func closedUnit() ruleFunc {
	return func(n *yaml.Node) error {
		v, err := nodeFloat(n)
		if err != nil {
			return err
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("must be in [0, 1], got %v", v)
		}
		return nil
	}
}

func openUnit() ruleFunc {
	return func(n *yaml.Node) error {
		v, err := nodeFloat(n)
		if err != nil {
			return err
		}
		if v <= 0 || v >= 1 {
			return fmt.Errorf("must be in (0, 1), got %v", v)
		}
		return nil
	}
}

func boolean() ruleFunc {
	return func(n *yaml.Node) error {
		if n.Kind != yaml.ScalarNode || n.Tag != "!!bool" {
			return errors.New("must be a boolean")
		}
		return nil
	}
}

func intList(minLen int, minVal int64) ruleFunc {
	return func(n *yaml.Node) error {
		if n.Kind != yaml.SequenceNode {
			return errors.New("must be a list of integers")
		}
		if len(n.Content) < minLen {
			return fmt.Errorf("must list at least %d value(s)", minLen)
		}
		for _, c := range n.Content {
			v, err := nodeInt(c)
			if err != nil {
				return errors.New("must be a list of integers")
			}
			if v < minVal {
				return fmt.Errorf("values must be at least %d, got %d", minVal, v)
			}
		}
		return nil
	}
}

func metricList() ruleFunc {
	return func(n *yaml.Node) error {
		if n.Kind != yaml.SequenceNode {
			return errors.New("must be a list of metric names")
		}
		if len(n.Content) == 0 {
			return errors.New("must list at least one metric")
		}
		for _, c := range n.Content {
			s, err := nodeString(c)
			if err != nil {
				return errors.New("must be a list of metric names")
			}
			if !metrics.Supported(s) {
				return fmt.Errorf("unsupported metric %q", s)
			}
		}
		return nil
	}
}

func metricName() ruleFunc {
	return func(n *yaml.Node) error {
		s, err := nodeString(n)
		if err != nil {
			return err
		}
		if !metrics.Supported(s) {
			return fmt.Errorf("unsupported metric %q", s)
		}
		return nil
	}
}

// Scalar coercion helpers.

func nodeString(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!str" {
		return "", errors.New("must be a string")
	}
	return n.Value, nil
}

func nodeInt(n *yaml.Node) (int64, error) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!int" {
		return 0, errors.New("must be an integer")
	}
	v, err := strconv.ParseInt(n.Value, 0, 64)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	return v, nil
}

// nodeFloat accepts integer scalars where a float is expected, the way
// YAML-configured trainers do.
func nodeFloat(n *yaml.Node) (float64, error) {
	if n.Kind != yaml.ScalarNode || (n.Tag != "!!float" && n.Tag != "!!int") {
		return 0, errors.New("must be a number")
	}
	v, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, errors.New("must be a number")
	}
	return v, nil
}
