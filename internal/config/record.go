// Package config loads, validates, and rewrites LibMultiLabel
// configuration files.
//
// A configuration file holds one record: an ordered YAML mapping from
// parameter names to scalars, lists, nested mappings, or hyperparameter
// search directives such as ['grid_search', [0.1, 0.01]]. Records keep
// their declaration order and nesting, so a loaded record can be
// expanded, rewritten, and serialized without losing structure.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one configuration record backed by its YAML node tree.
type Record struct {
	path string
	root *yaml.Node // mapping node
}

// Parse parses YAML data into a Record.
func Parse(data []byte) (*Record, error) {
	return parse(data, "")
}

// LoadRecord reads and parses the configuration file at path. A missing
// file surfaces the os.ReadFile error unchanged, so callers can test it
// with errors.Is(err, fs.ErrNotExist).
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return parse(data, path)
}

func parse(data []byte, path string) (*Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Msg: err.Error(), Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, &ParseError{Path: path, Msg: "empty document, expected a parameter mapping"}
	}
	root := doc.Content[0]
	if root.Kind == yaml.AliasNode {
		root = root.Alias
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path: path,
			Line: root.Line,
			Msg:  fmt.Sprintf("top level must be a mapping of parameters, got a %s", kindName(root)),
		}
	}
	if err := checkDuplicateKeys(root, path); err != nil {
		return nil, err
	}
	return &Record{path: path, root: root}, nil
}

// checkDuplicateKeys rejects mappings that bind the same parameter name
// twice. Plain YAML would let the later binding win silently.
func checkDuplicateKeys(n *yaml.Node, path string) error {
	switch n.Kind {
	case yaml.MappingNode:
		seen := make(map[string]bool, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if seen[key.Value] {
				return &ParseError{
					Path: path,
					Line: key.Line,
					Msg:  fmt.Sprintf("duplicate parameter %q", key.Value),
				}
			}
			seen[key.Value] = true
			if err := checkDuplicateKeys(val, path); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := checkDuplicateKeys(c, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// Path returns the file the record was loaded from, if any.
func (r *Record) Path() string { return r.path }

// Root returns the underlying mapping node. The tree is shared with the
// record; use Clone before mutating it.
func (r *Record) Root() *yaml.Node { return r.root }

// Len returns the number of top-level parameters.
func (r *Record) Len() int { return len(r.root.Content) / 2 }

// Keys returns the top-level parameter names in declaration order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, r.Len())
	for i := 0; i+1 < len(r.root.Content); i += 2 {
		keys = append(keys, r.root.Content[i].Value)
	}
	return keys
}

// Get returns the value node of a top-level parameter.
func (r *Record) Get(key string) (*yaml.Node, bool) {
	return mapGet(r.root, key)
}

// Lookup descends nested mappings, e.g. Lookup("network_config", "rnn_dim").
func (r *Record) Lookup(keys ...string) (*yaml.Node, bool) {
	n := r.root
	for _, key := range keys {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
		}
		if n.Kind != yaml.MappingNode {
			return nil, false
		}
		v, ok := mapGet(n, key)
		if !ok {
			return nil, false
		}
		n = v
	}
	return n, true
}

func mapGet(m *yaml.Node, key string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1], true
		}
	}
	return nil, false
}

// GetString returns a top-level string parameter, or def when the
// parameter is absent, null, or not a scalar.
func (r *Record) GetString(key, def string) string {
	n, ok := r.Get(key)
	if !ok || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return def
	}
	return n.Value
}

// GetInt returns a top-level integer parameter, or def when the parameter
// is absent or not an integer scalar.
func (r *Record) GetInt(key string, def int) int {
	n, ok := r.Get(key)
	if !ok || n.Kind != yaml.ScalarNode {
		return def
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return def
	}
	return v
}

// GetBool returns a top-level boolean parameter, or def when the
// parameter is absent or not a boolean scalar.
func (r *Record) GetBool(key string, def bool) bool {
	n, ok := r.Get(key)
	if !ok || n.Kind != yaml.ScalarNode || n.Tag != "!!bool" {
		return def
	}
	return parseBool(n.Value)
}

// Set binds a top-level parameter to the given node. An existing
// parameter keeps its declaration position; a new one is appended.
func (r *Record) Set(key string, value *yaml.Node) {
	for i := 0; i+1 < len(r.root.Content); i += 2 {
		if r.root.Content[i].Value == key {
			r.root.Content[i+1] = value
			return
		}
	}
	r.root.Content = append(r.root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value)
}

// SetString sets a top-level parameter to a string value.
func (r *Record) SetString(key, v string) {
	r.Set(key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
}

// SetInt sets a top-level parameter to an integer value.
func (r *Record) SetInt(key string, v int) {
	r.Set(key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)})
}

// SetFloat sets a top-level parameter to a float value.
func (r *Record) SetFloat(key string, v float64) {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0" // keep the scalar a float on re-parse
	}
	r.Set(key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s})
}

// SetBool sets a top-level parameter to a boolean value.
func (r *Record) SetBool(key string, v bool) {
	r.Set(key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)})
}

// SetStrings sets a top-level parameter to a list of strings.
func (r *Record) SetStrings(key string, vs []string) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range vs {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	r.Set(key, seq)
}

// Clone returns a deep copy of the record. Anchors are expanded during
// the copy, so the clone shares no nodes with the original.
func (r *Record) Clone() *Record {
	return &Record{path: r.path, root: CloneNode(r.root)}
}

// CloneNode deep-copies a YAML node tree, expanding alias nodes.
func CloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode {
		return CloneNode(n.Alias)
	}
	c := *n
	c.Anchor = ""
	c.Alias = nil
	if n.Content != nil {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = CloneNode(child)
		}
	}
	return &c
}

// Equal reports whether two records hold the same parameters with the
// same values in the same declaration order. Comments, quoting style,
// and formatting are ignored.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return nodesEqual(r.root, o.root)
}

func nodesEqual(a, b *yaml.Node) bool {
	if a.Kind == yaml.AliasNode {
		a = a.Alias
	}
	if b.Kind == yaml.AliasNode {
		b = b.Alias
	}
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == yaml.ScalarNode {
		return scalarsEqual(a, b)
	}
	if len(a.Content) != len(b.Content) {
		return false
	}
	for i := range a.Content {
		if !nodesEqual(a.Content[i], b.Content[i]) {
			return false
		}
	}
	return true
}

// scalarsEqual compares resolved scalar values: 0.5 and 0.50 are equal,
// the string "8" and the integer 8 are not.
func scalarsEqual(a, b *yaml.Node) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case "!!null":
		return true
	case "!!int":
		ai, aerr := strconv.ParseInt(a.Value, 0, 64)
		bi, berr := strconv.ParseInt(b.Value, 0, 64)
		if aerr != nil || berr != nil {
			return a.Value == b.Value
		}
		return ai == bi
	case "!!float":
		af, aerr := strconv.ParseFloat(a.Value, 64)
		bf, berr := strconv.ParseFloat(b.Value, 64)
		if aerr != nil || berr != nil {
			return a.Value == b.Value
		}
		return af == bf
	case "!!bool":
		return parseBool(a.Value) == parseBool(b.Value)
	default:
		return a.Value == b.Value
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "yes", "on", "y":
		return true
	}
	return false
}

// Encode serializes the record back to YAML. Declaration order is
// preserved, and re-parsing the output yields an Equal record.
func (r *Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r.root); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the record to a YAML file, creating parent directories as
// needed.
func (r *Record) Save(path string) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Decode unmarshals the record into out, typically a *Config.
func (r *Record) Decode(out any) error {
	if err := r.root.Decode(out); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
