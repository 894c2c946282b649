package search

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
)

func mustParse(t *testing.T, src string) *config.Record {
	t.Helper()
	rec, err := config.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return rec
}

func mustExpand(t *testing.T, src string) *Expansion {
	t.Helper()
	x, err := Expand(mustParse(t, src))
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	return x
}

func TestCollect_DeclarationOrder(t *testing.T) {
	rec := mustParse(t, `
learning_rate: ['grid_search', [0.1, 0.01]]
network_config:
  rnn_dim: ['choice', [256, 512]]
  rnn_layers: 1
batch_size: ['grid_search', [16, 32]]
`)
	dirs := Collect(rec)
	var paths []string
	for _, d := range dirs {
		paths = append(paths, d.Path)
	}
	want := []string{"learning_rate", "network_config.rnn_dim", "batch_size"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("directive order mismatch (-want +got):\n%s", diff)
	}
	if dirs[1].Strategy != config.StrategyChoice {
		t.Errorf("strategy=%q, want choice", dirs[1].Strategy)
	}
}

func TestExpand_CartesianProduct(t *testing.T) {
	x := mustExpand(t, `
learning_rate: ['grid_search', [0.1, 0.01, 0.001]]
batch_size: ['choice', [16, 32]]
`)
	if x.Len() != 6 {
		t.Fatalf("Len=%d, want 6", x.Len())
	}

	var got [][]string
	for i := 0; i < x.Len(); i++ {
		a, err := x.Assignment(i)
		if err != nil {
			t.Fatalf("Assignment(%d) failed: %v", i, err)
		}
		got = append(got, a)
	}
	// The first-declared directive varies slowest.
	want := [][]string{
		{"0.1", "16"},
		{"0.1", "32"},
		{"0.01", "16"},
		{"0.01", "32"},
		{"0.001", "16"},
		{"0.001", "32"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("enumeration order mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_MaterializesConcreteRecords(t *testing.T) {
	x := mustExpand(t, `
data_name: rcv1
learning_rate: ['grid_search', [0.1, 0.01]]
network_config:
  rnn_dim: ['grid_search', [256, 512]]
`)
	rec, err := x.At(3)
	if err != nil {
		t.Fatalf("At(3) failed: %v", err)
	}
	if rec.HasDirectives() {
		t.Error("concrete record should hold no directives")
	}
	if lr, _ := rec.Get("learning_rate"); lr.Value != "0.01" {
		t.Errorf("learning_rate=%s, want 0.01", lr.Value)
	}
	if dim, ok := rec.Lookup("network_config", "rnn_dim"); !ok || dim.Value != "512" {
		t.Errorf("rnn_dim=%v, want 512", dim)
	}
	// Untouched parameters carry through.
	if got := rec.GetString("data_name", ""); got != "rcv1" {
		t.Errorf("data_name=%q, want rcv1", got)
	}
}

func TestExpand_SourceRecordUntouched(t *testing.T) {
	src := "learning_rate: ['grid_search', [0.1, 0.01]]\n"
	rec := mustParse(t, src)
	x, err := Expand(rec)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	for i := 0; i < x.Len(); i++ {
		if _, err := x.At(i); err != nil {
			t.Fatalf("At(%d) failed: %v", i, err)
		}
	}
	if !rec.Equal(mustParse(t, src)) {
		t.Error("expansion mutated the source record")
	}
	if !rec.HasDirectives() {
		t.Error("source record should keep its directives")
	}
}

func TestExpand_NoDirectives(t *testing.T) {
	rec := mustParse(t, "data_name: rcv1\nbatch_size: 16\n")
	x, err := Expand(rec)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if x.Len() != 1 {
		t.Fatalf("Len=%d, want 1", x.Len())
	}
	got, err := x.At(0)
	if err != nil {
		t.Fatalf("At(0) failed: %v", err)
	}
	if !got.Equal(rec) {
		t.Error("the single combination should equal the source record")
	}
}

func TestExpand_EmptyCandidates(t *testing.T) {
	_, err := Expand(mustParse(t, "learning_rate: ['grid_search', []]\n"))
	if err == nil {
		t.Fatal("expected error for empty candidate list")
	}
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *config.ValidationError, got %T", err)
	}
	if verr.Param != "learning_rate" {
		t.Errorf("Param=%q, want learning_rate", verr.Param)
	}
}

func TestExpand_ChoiceAndGridAreEquivalent(t *testing.T) {
	grid := mustExpand(t, "batch_size: ['grid_search', [16, 32, 64]]\n")
	choice := mustExpand(t, "batch_size: ['choice', [16, 32, 64]]\n")
	if grid.Len() != choice.Len() {
		t.Fatalf("Len mismatch: grid=%d choice=%d", grid.Len(), choice.Len())
	}
	for i := 0; i < grid.Len(); i++ {
		g, _ := grid.At(i)
		c, _ := choice.At(i)
		if !g.Equal(c) {
			t.Errorf("combination %d differs between grid_search and choice", i)
		}
	}
}

func TestExpand_ListCandidates(t *testing.T) {
	x := mustExpand(t, `
network_config:
  filter_sizes: ['grid_search', [[2, 4, 8], [4, 8]]]
`)
	if x.Len() != 2 {
		t.Fatalf("Len=%d, want 2", x.Len())
	}
	rec, err := x.At(0)
	if err != nil {
		t.Fatalf("At(0) failed: %v", err)
	}
	fs, ok := rec.Lookup("network_config", "filter_sizes")
	if !ok {
		t.Fatal("filter_sizes missing")
	}
	if len(fs.Content) != 3 {
		t.Errorf("filter_sizes has %d elements, want 3", len(fs.Content))
	}
	if fs.Content[0].Value != "2" {
		t.Errorf("first filter size=%s, want 2", fs.Content[0].Value)
	}
}

func TestIter_RestartableAndIndependent(t *testing.T) {
	x := mustExpand(t, "batch_size: ['grid_search', [16, 32]]\n")

	drain := func(it *Iter) []string {
		var out []string
		for {
			rec, ok := it.Next()
			if !ok {
				break
			}
			n, _ := rec.Get("batch_size")
			out = append(out, n.Value)
		}
		return out
	}

	it := x.Records()
	first := drain(it)
	it.Reset()
	second := drain(it)
	third := drain(x.Records())

	want := []string{"16", "32"}
	for _, got := range [][]string{first, second, third} {
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("iteration mismatch (-want +got):\n%s", diff)
		}
	}
	if _, ok := it.Next(); ok {
		t.Error("exhausted iterator should keep returning false")
	}
}

func TestExpand_MaterializedRecordsAreIndependent(t *testing.T) {
	x := mustExpand(t, "batch_size: ['grid_search', [16, 32]]\n")
	a, _ := x.At(0)
	b, _ := x.At(0)
	n, _ := a.Get("batch_size")
	n.Value = "999"
	bn, _ := b.Get("batch_size")
	if bn.Value != "16" {
		t.Errorf("records share nodes: %s", bn.Value)
	}
}

func TestExpand_AtOutOfRange(t *testing.T) {
	x := mustExpand(t, "batch_size: ['grid_search', [16, 32]]\n")
	if _, err := x.At(2); err == nil {
		t.Error("expected error for index past the end")
	}
	if _, err := x.At(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestLabel(t *testing.T) {
	rec := mustParse(t, `
scalar: 0.001
list: [2, 4, 8]
nested: {a: 1, b: [x, y]}
empty:
`)
	cases := map[string]string{
		"scalar": "0.001",
		"list":   "[2, 4, 8]",
		"nested": "{a: 1, b: [x, y]}",
		"empty":  "null",
	}
	for key, want := range cases {
		n, _ := rec.Get(key)
		if got := Label(n); got != want {
			t.Errorf("Label(%s)=%q, want %q", key, got, want)
		}
	}
}
