// Package search expands hyperparameter search directives into the
// concrete configuration records a sweep runs, one per combination.
package search

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
)

// Directive is one search directive found in a record: the parameter it
// binds, its strategy, and its candidate values. Candidates are literal
// values; a candidate that happens to look like a directive is not
// expanded further.
type Directive struct {
	Path       string
	Strategy   string
	Candidates []*yaml.Node

	node *yaml.Node // the directive's position in its record tree
}

// Collect walks a record in declaration order and returns every search
// directive in it, however deeply nested.
func Collect(rec *config.Record) []Directive {
	return collect(rec.Root(), "")
}

func collect(n *yaml.Node, path string) []Directive {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if strategy, candidates, ok := config.DirectiveParts(n); ok {
		return []Directive{{Path: path, Strategy: strategy, Candidates: candidates, node: n}}
	}
	var dirs []Directive
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			child := key
			if path != "" {
				child = path + "." + key
			}
			dirs = append(dirs, collect(n.Content[i+1], child)...)
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			dirs = append(dirs, collect(c, fmt.Sprintf("%s[%d]", path, i))...)
		}
	}
	return dirs
}

// Expansion is the Cartesian product of a record's search directives.
// It enumerates lazily: each combination is materialized on demand as
// its own record, leaving the source record untouched.
type Expansion struct {
	base    *config.Record
	dirs    []Directive
	strides []int
	total   int
}

// Expand prepares the expansion of a record. A record without
// directives expands to exactly one concrete record, itself. A
// directive with no candidates is a validation error.
func Expand(rec *config.Record) (*Expansion, error) {
	dirs := Collect(rec)
	total := 1
	for _, d := range dirs {
		c := len(d.Candidates)
		if c == 0 {
			return nil, &config.ValidationError{Param: d.Path, Msg: "empty candidate list"}
		}
		if total > math.MaxInt/c {
			return nil, fmt.Errorf("search space is too large to enumerate")
		}
		total *= c
	}

	// The first-declared directive varies slowest, so its stride is the
	// product of all later candidate counts.
	strides := make([]int, len(dirs))
	stride := 1
	for j := len(dirs) - 1; j >= 0; j-- {
		strides[j] = stride
		stride *= len(dirs[j].Candidates)
	}

	return &Expansion{base: rec, dirs: dirs, strides: strides, total: total}, nil
}

// Len returns the number of concrete records the expansion produces.
func (x *Expansion) Len() int { return x.total }

// Directives returns the collected directives in declaration order.
func (x *Expansion) Directives() []Directive {
	out := make([]Directive, len(x.dirs))
	copy(out, x.dirs)
	return out
}

// At materializes combination i as a concrete record. The source record
// is cloned, then each directive in the clone is overwritten with its
// candidate for this combination.
func (x *Expansion) At(i int) (*config.Record, error) {
	if i < 0 || i >= x.total {
		return nil, fmt.Errorf("combination %d out of range [0, %d)", i, x.total)
	}
	clone := x.base.Clone()
	for j, d := range collect(clone.Root(), "") {
		pick := (i / x.strides[j]) % len(d.Candidates)
		*d.node = *d.Candidates[pick]
	}
	return clone, nil
}

// Assignment returns the candidate chosen for each directive in
// combination i, rendered as strings in declaration order.
func (x *Expansion) Assignment(i int) ([]string, error) {
	if i < 0 || i >= x.total {
		return nil, fmt.Errorf("combination %d out of range [0, %d)", i, x.total)
	}
	out := make([]string, len(x.dirs))
	for j, d := range x.dirs {
		pick := (i / x.strides[j]) % len(d.Candidates)
		out[j] = Label(d.Candidates[pick])
	}
	return out, nil
}

// Records returns a fresh iterator over all combinations. Iterators are
// independent; enumerating one does not disturb another.
func (x *Expansion) Records() *Iter {
	return &Iter{x: x}
}

// Iter enumerates an expansion's concrete records in combination order.
type Iter struct {
	x    *Expansion
	next int
}

// Next returns the next concrete record, or false when exhausted.
func (it *Iter) Next() (*config.Record, bool) {
	if it.next >= it.x.total {
		return nil, false
	}
	rec, err := it.x.At(it.next)
	if err != nil {
		return nil, false
	}
	it.next++
	return rec, true
}

// Reset rewinds the iterator to the first combination.
func (it *Iter) Reset() { it.next = 0 }

// Label renders a candidate value for table output, e.g. "0.001" or
// "[2, 4, 8]".
func Label(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "null"
		}
		return n.Value
	case yaml.SequenceNode:
		parts := make([]string, len(n.Content))
		for i, c := range n.Content {
			parts[i] = Label(c)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case yaml.MappingNode:
		parts := make([]string, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			parts = append(parts, n.Content[i].Value+": "+Label(n.Content[i+1]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}
