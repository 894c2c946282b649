package config

import "gopkg.in/yaml.v3"

// Search strategies recognized in parameter values.
const (
	StrategyGridSearch = "grid_search"
	StrategyChoice     = "choice"
)

// IsDirective reports whether a node is a hyperparameter search
// directive: a two-element sequence holding a strategy name and a
// sequence of candidate values, e.g. ['grid_search', [0.1, 0.01]].
// Anything else, including a two-element list with an unknown first
// element, is an ordinary value.
func IsDirective(n *yaml.Node) bool {
	_, _, ok := DirectiveParts(n)
	return ok
}

// DirectiveParts splits a directive node into its strategy name and
// candidate value nodes. ok is false for any node that is not a
// directive. The candidates are literal values; they are never scanned
// for nested directives.
func DirectiveParts(n *yaml.Node) (strategy string, candidates []*yaml.Node, ok bool) {
	if n == nil {
		return "", nil, false
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.SequenceNode || len(n.Content) != 2 {
		return "", nil, false
	}
	head := n.Content[0]
	tail := n.Content[1]
	if head.Kind == yaml.AliasNode {
		head = head.Alias
	}
	if tail.Kind == yaml.AliasNode {
		tail = tail.Alias
	}
	if head.Kind != yaml.ScalarNode {
		return "", nil, false
	}
	if head.Value != StrategyGridSearch && head.Value != StrategyChoice {
		return "", nil, false
	}
	if tail.Kind != yaml.SequenceNode {
		return "", nil, false
	}
	return head.Value, tail.Content, true
}

// HasDirectives reports whether any search directives remain anywhere in
// the record. Concrete records, the ones a trial actually runs, have
// none.
func (r *Record) HasDirectives() bool {
	return hasDirectives(r.root)
}

func hasDirectives(n *yaml.Node) bool {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if IsDirective(n) {
		return true
	}
	for _, c := range n.Content {
		if hasDirectives(c) {
			return true
		}
	}
	return false
}
