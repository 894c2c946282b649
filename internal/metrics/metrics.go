// Package metrics implements the multi-label evaluation metrics the
// trainer reports: precision at k, R-precision at k, and the F1 family.
//
// Metrics consume batches of decision values (one row of per-class
// scores per sample) against 0/1 ground-truth label matrices, and
// compute a final score over everything accumulated since the last
// reset.
package metrics

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Averaging modes for the F1 family.
const (
	AverageMacro        = "macro"
	AverageMicro        = "micro"
	AverageAnotherMacro = "another-macro"
)

// LossMetric is the validation loss the trainer reports directly; it is
// a valid name to monitor but cannot be computed from decision values.
const LossMetric = "Loss"

// Optimization directions for monitored metrics.
const (
	ModeMin = "min"
	ModeMax = "max"
)

var atKPattern = regexp.MustCompile(`^(P|RP)@(\d+)$`)

// Metric accumulates prediction batches and computes a final score.
type Metric interface {
	// Update folds in one batch. preds holds per-class decision values,
	// target the 0/1 ground truth, both sized batch x classes.
	Update(preds [][]float64, target [][]int) error
	// Compute returns the score over all batches since the last reset.
	Compute() float64
	// Reset clears the accumulated state.
	Reset()
}

// Supported reports whether name is a metric the evaluator understands,
// including the trainer-reported Loss.
func Supported(name string) bool {
	if name == LossMetric {
		return true
	}
	if m := atKPattern.FindStringSubmatch(name); m != nil {
		k, err := strconv.Atoi(m[2])
		return err == nil && k >= 1
	}
	switch name {
	case "Macro-F1", "Micro-F1", "Another-Macro-F1":
		return true
	}
	return false
}

// ModeFor returns the optimization direction for a metric: ModeMin for
// Loss, ModeMax for everything else.
func ModeFor(name string) string {
	if name == LossMetric {
		return ModeMin
	}
	return ModeMax
}

// New builds a single metric from its name. Loss is rejected because it
// is reported by the trainer, not computed here.
func New(name string, threshold float64, multiclass bool) (Metric, error) {
	if m := atKPattern.FindStringSubmatch(name); m != nil {
		k, err := strconv.Atoi(m[2])
		if err != nil || k < 1 {
			return nil, fmt.Errorf("invalid top-k in metric %q", name)
		}
		if m[1] == "P" {
			return &precisionAtK{k: k}, nil
		}
		return &rPrecisionAtK{k: k}, nil
	}
	switch name {
	case "Macro-F1":
		return &f1{average: AverageMacro, threshold: threshold, multiclass: multiclass}, nil
	case "Micro-F1":
		return &f1{average: AverageMicro, threshold: threshold, multiclass: multiclass}, nil
	case "Another-Macro-F1":
		return &f1{average: AverageAnotherMacro, threshold: threshold, multiclass: multiclass}, nil
	case LossMetric:
		return nil, fmt.Errorf("metric %q is reported by the trainer and cannot be computed from decision values", name)
	}
	return nil, fmt.Errorf("unsupported metric: %q", name)
}

// precisionAtK is the samples-averaged precision of the top-k scored
// classes.
type precisionAtK struct {
	k         int
	score     float64
	numSample int
}

func (m *precisionAtK) Update(preds [][]float64, target [][]int) error {
	if err := checkBatch(preds, target); err != nil {
		return err
	}
	for i, row := range preds {
		hits := 0
		for _, j := range topKIndices(row, m.k) {
			if target[i][j] == 1 {
				hits++
			}
		}
		m.score += float64(hits) / float64(m.k)
		m.numSample++
	}
	return nil
}

func (m *precisionAtK) Compute() float64 {
	if m.numSample == 0 {
		return 0
	}
	return m.score / float64(m.numSample)
}

func (m *precisionAtK) Reset() {
	m.score = 0
	m.numSample = 0
}

// rPrecisionAtK divides the top-k hits by min(k, number of relevant
// labels). Samples with no relevant labels contribute zero.
type rPrecisionAtK struct {
	k         int
	score     float64
	numSample int
}

func (m *rPrecisionAtK) Update(preds [][]float64, target [][]int) error {
	if err := checkBatch(preds, target); err != nil {
		return err
	}
	for i, row := range preds {
		relevant := 0
		for _, t := range target[i] {
			if t == 1 {
				relevant++
			}
		}
		if relevant > m.k {
			relevant = m.k
		}
		hits := 0
		for _, j := range topKIndices(row, m.k) {
			if target[i][j] == 1 {
				hits++
			}
		}
		if relevant > 0 {
			m.score += float64(hits) / float64(relevant)
		}
		m.numSample++
	}
	return nil
}

func (m *rPrecisionAtK) Compute() float64 {
	if m.numSample == 0 {
		return 0
	}
	return m.score / float64(m.numSample)
}

func (m *rPrecisionAtK) Reset() {
	m.score = 0
	m.numSample = 0
}

// f1 accumulates per-class true/false positives and false negatives.
// Predictions are decision values over threshold, or the argmax class in
// multiclass mode.
type f1 struct {
	average    string
	threshold  float64
	multiclass bool

	tp, fp, fn []float64
}

func (m *f1) Update(preds [][]float64, target [][]int) error {
	if err := checkBatch(preds, target); err != nil {
		return err
	}
	if len(preds) == 0 {
		return nil
	}
	classes := len(preds[0])
	if m.tp == nil {
		m.tp = make([]float64, classes)
		m.fp = make([]float64, classes)
		m.fn = make([]float64, classes)
	}
	if len(m.tp) != classes {
		return fmt.Errorf("inconsistent number of classes: got %d, expected %d", classes, len(m.tp))
	}
	for i, row := range preds {
		if m.multiclass {
			best := 0
			for j, v := range row {
				if v > row[best] {
					best = j
				}
			}
			for j := range row {
				m.count(j, j == best, target[i][j] == 1)
			}
			continue
		}
		for j, v := range row {
			m.count(j, v > m.threshold, target[i][j] == 1)
		}
	}
	return nil
}

func (m *f1) count(class int, predicted, actual bool) {
	switch {
	case predicted && actual:
		m.tp[class]++
	case predicted && !actual:
		m.fp[class]++
	case !predicted && actual:
		m.fn[class]++
	}
}

func (m *f1) Compute() float64 {
	if m.tp == nil {
		return 0
	}
	switch m.average {
	case AverageMacro:
		sum := 0.0
		for j := range m.tp {
			sum += safeDiv(2*m.tp[j], 2*m.tp[j]+m.fp[j]+m.fn[j])
		}
		return sum / float64(len(m.tp))
	case AverageAnotherMacro:
		precSum, recSum := 0.0, 0.0
		for j := range m.tp {
			precSum += safeDiv(m.tp[j], m.tp[j]+m.fp[j])
			recSum += safeDiv(m.tp[j], m.tp[j]+m.fn[j])
		}
		prec := precSum / float64(len(m.tp))
		rec := recSum / float64(len(m.tp))
		return safeDiv(2*prec*rec, prec+rec)
	case AverageMicro:
		var tp, fp, fn float64
		for j := range m.tp {
			tp += m.tp[j]
			fp += m.fp[j]
			fn += m.fn[j]
		}
		return safeDiv(2*tp, 2*tp+fp+fn)
	}
	return 0
}

func (m *f1) Reset() {
	m.tp, m.fp, m.fn = nil, nil, nil
}

// topKIndices returns the indices of the k largest values, best first.
// k is clamped to the row width.
func topKIndices(row []float64, k int) []int {
	if k > len(row) {
		k = len(row)
	}
	idx := make([]int, len(row))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })
	return idx[:k]
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func checkBatch(preds [][]float64, target [][]int) error {
	if len(preds) != len(target) {
		return fmt.Errorf("batch size mismatch: %d predictions, %d targets", len(preds), len(target))
	}
	for i := range preds {
		if len(preds[i]) != len(target[i]) {
			return fmt.Errorf("class count mismatch at sample %d: %d predictions, %d targets", i, len(preds[i]), len(target[i]))
		}
	}
	return nil
}
