package metrics

import (
	"fmt"
	"strings"
)

// Collection evaluates a fixed set of metrics over streamed batches.
type Collection struct {
	names   []string
	metrics map[string]Metric
}

// NewCollection builds the collection for the given metric names in
// order. Duplicate names collapse to one metric.
func NewCollection(names []string, threshold float64, multiclass bool) (*Collection, error) {
	c := &Collection{metrics: make(map[string]Metric, len(names))}
	for _, name := range names {
		if _, ok := c.metrics[name]; ok {
			continue
		}
		m, err := New(name, threshold, multiclass)
		if err != nil {
			return nil, err
		}
		c.names = append(c.names, name)
		c.metrics[name] = m
	}
	return c, nil
}

// Names returns the metric names in collection order.
func (c *Collection) Names() []string {
	return append([]string(nil), c.names...)
}

// Update folds one batch into every metric.
func (c *Collection) Update(preds [][]float64, target [][]int) error {
	for _, name := range c.names {
		if err := c.metrics[name].Update(preds, target); err != nil {
			return fmt.Errorf("update %s: %w", name, err)
		}
	}
	return nil
}

// Compute returns the score of every metric over the accumulated
// batches.
func (c *Collection) Compute() map[string]float64 {
	out := make(map[string]float64, len(c.names))
	for _, name := range c.names {
		out[name] = c.metrics[name].Compute()
	}
	return out
}

// Reset clears every metric.
func (c *Collection) Reset() {
	for _, m := range c.metrics {
		m.Reset()
	}
}

const tabulateWidth = 18

// Tabulate renders metric values the way the trainer prints evaluation
// results: a markdown-style table with scores scaled to percentages at
// four decimal places. Names without a value are skipped.
func Tabulate(names []string, values map[string]float64, split string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "====== %s dataset evaluation result =======\n", split)

	cols := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := values[name]; ok {
			cols = append(cols, name)
		}
	}
	if len(cols) == 0 {
		b.WriteString("(no metrics)\n")
		return b.String()
	}

	b.WriteString("|")
	for _, name := range cols {
		b.WriteString(center(name, tabulateWidth))
		b.WriteString("|")
	}
	b.WriteString("\n|")
	for range cols {
		b.WriteString(strings.Repeat("-", tabulateWidth-1) + ":")
		b.WriteString("|")
	}
	b.WriteString("\n|")
	for _, name := range cols {
		b.WriteString(center(fmt.Sprintf("%.4f", values[name]*100), tabulateWidth))
		b.WriteString("|")
	}
	b.WriteString("\n")
	return b.String()
}

func center(s string, w int) string {
	if len(s) >= w {
		return s
	}
	left := (w - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", w-len(s)-left)
}
