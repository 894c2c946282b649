package metrics

import (
	"math"
	"strings"
	"testing"
)

const eps = 1e-9

func almost(t *testing.T, got, want float64, what string) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

func mustMetric(t *testing.T, name string, threshold float64, multiclass bool) Metric {
	t.Helper()
	m, err := New(name, threshold, multiclass)
	if err != nil {
		t.Fatalf("New(%q) failed: %v", name, err)
	}
	return m
}

func TestSupported(t *testing.T) {
	for _, name := range []string{"P@1", "P@15", "RP@5", "Macro-F1", "Micro-F1", "Another-Macro-F1", "Loss"} {
		if !Supported(name) {
			t.Errorf("Supported(%q) = false", name)
		}
	}
	for _, name := range []string{"P@0", "P@-1", "P@", "NDCG@5", "F1", "macro-f1", ""} {
		if Supported(name) {
			t.Errorf("Supported(%q) = true", name)
		}
	}
}

func TestModeFor(t *testing.T) {
	if got := ModeFor("Loss"); got != ModeMin {
		t.Errorf("ModeFor(Loss) = %q, want min", got)
	}
	if got := ModeFor("P@1"); got != ModeMax {
		t.Errorf("ModeFor(P@1) = %q, want max", got)
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New("Loss", 0.5, false); err == nil {
		t.Error("New(Loss) succeeded, want error")
	}
	if _, err := New("NDCG@5", 0.5, false); err == nil {
		t.Error("New(NDCG@5) succeeded, want error")
	}
}

func TestPrecisionAtK(t *testing.T) {
	m := mustMetric(t, "P@2", 0.5, false)
	preds := [][]float64{
		{0.9, 0.8, 0.1}, // top-2: classes 0,1; both relevant
		{0.2, 0.7, 0.6}, // top-2: classes 1,2; one relevant
	}
	target := [][]int{
		{1, 1, 0},
		{0, 0, 1},
	}
	if err := m.Update(preds, target); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	almost(t, m.Compute(), (1.0+0.5)/2, "P@2")

	m.Reset()
	almost(t, m.Compute(), 0, "P@2 after Reset")
}

func TestPrecisionAtK_ClampsToRowWidth(t *testing.T) {
	m := mustMetric(t, "P@5", 0.5, false)
	if err := m.Update([][]float64{{0.9, 0.1}}, [][]int{{1, 0}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	// Both classes fall in the top-5; one hit out of k=5.
	almost(t, m.Compute(), 1.0/5, "P@5 on two classes")
}

func TestRPrecisionAtK(t *testing.T) {
	m := mustMetric(t, "RP@2", 0.5, false)
	preds := [][]float64{
		{0.9, 0.8, 0.1, 0.2}, // top-2: 0,1; relevant {0,1,3} clamped to 2
		{0.6, 0.1, 0.2, 0.3}, // top-2: 0,3; relevant {0}
	}
	target := [][]int{
		{1, 1, 0, 1},
		{1, 0, 0, 0},
	}
	if err := m.Update(preds, target); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	almost(t, m.Compute(), (2.0/2+1.0/1)/2, "RP@2")
}

func TestRPrecisionAtK_NoRelevantContributesZero(t *testing.T) {
	m := mustMetric(t, "RP@1", 0.5, false)
	preds := [][]float64{
		{0.9, 0.1},
		{0.9, 0.1},
	}
	target := [][]int{
		{0, 0}, // no relevant labels; counts toward the mean as 0
		{1, 0},
	}
	if err := m.Update(preds, target); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	almost(t, m.Compute(), 0.5, "RP@1 with an all-zero row")
}

func TestF1Macro(t *testing.T) {
	m := mustMetric(t, "Macro-F1", 0.5, false)
	preds := [][]float64{
		{0.9, 0.1},
		{0.9, 0.9},
	}
	target := [][]int{
		{1, 1},
		{0, 1},
	}
	if err := m.Update(preds, target); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	// class 0: tp=1 fp=1 fn=0 -> 2/3; class 1: tp=1 fp=0 fn=1 -> 2/3
	almost(t, m.Compute(), 2.0/3, "Macro-F1")
}

func TestF1Micro(t *testing.T) {
	m := mustMetric(t, "Micro-F1", 0.5, false)
	preds := [][]float64{
		{0.9, 0.1},
		{0.9, 0.9},
	}
	target := [][]int{
		{1, 1},
		{0, 1},
	}
	if err := m.Update(preds, target); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	// pooled: tp=2 fp=1 fn=1 -> 2*2/(2*2+1+1)
	almost(t, m.Compute(), 4.0/6, "Micro-F1")
}

func TestF1AnotherMacro(t *testing.T) {
	m := mustMetric(t, "Another-Macro-F1", 0.5, false)
	preds := [][]float64{
		{0.9, 0.1},
		{0.9, 0.9},
	}
	target := [][]int{
		{1, 1},
		{0, 1},
	}
	if err := m.Update(preds, target); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	// macro precision = (1/2 + 1/1)/2 = 0.75, macro recall = (1/1 + 1/2)/2 = 0.75
	almost(t, m.Compute(), 0.75, "Another-Macro-F1")
}

func TestF1Multiclass_Argmax(t *testing.T) {
	m := mustMetric(t, "Micro-F1", 0.5, true)
	preds := [][]float64{
		{0.2, 0.7, 0.1}, // argmax 1
		{0.8, 0.1, 0.1}, // argmax 0
	}
	target := [][]int{
		{0, 1, 0},
		{0, 0, 1},
	}
	if err := m.Update(preds, target); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	// tp=1 fp=1 fn=1 -> 2/(2+1+1)
	almost(t, m.Compute(), 0.5, "multiclass Micro-F1")
}

func TestF1_AccumulatesAcrossBatches(t *testing.T) {
	m := mustMetric(t, "Micro-F1", 0.5, false)
	for i := 0; i < 2; i++ {
		if err := m.Update([][]float64{{0.9, 0.1}}, [][]int{{1, 1}}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	// per batch tp=1 fn=1; doubled: tp=2 fn=2 -> 4/6
	almost(t, m.Compute(), 4.0/6, "Micro-F1 over two batches")
}

func TestUpdate_BatchMismatch(t *testing.T) {
	m := mustMetric(t, "P@1", 0.5, false)
	if err := m.Update([][]float64{{0.5}}, nil); err == nil {
		t.Error("mismatched batch sizes accepted")
	}
	if err := m.Update([][]float64{{0.5, 0.5}}, [][]int{{1}}); err == nil {
		t.Error("mismatched class counts accepted")
	}
}

func TestF1_InconsistentClasses(t *testing.T) {
	m := mustMetric(t, "Macro-F1", 0.5, false)
	if err := m.Update([][]float64{{0.5, 0.5}}, [][]int{{1, 0}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := m.Update([][]float64{{0.5, 0.5, 0.5}}, [][]int{{1, 0, 0}}); err == nil {
		t.Error("class count change accepted")
	}
}

func TestEmptyCompute(t *testing.T) {
	for _, name := range []string{"P@1", "RP@1", "Macro-F1", "Micro-F1", "Another-Macro-F1"} {
		m := mustMetric(t, name, 0.5, false)
		almost(t, m.Compute(), 0, name+" with no batches")
	}
}

func TestCollection(t *testing.T) {
	c, err := NewCollection([]string{"P@1", "Micro-F1", "P@1"}, 0.5, false)
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	if got := c.Names(); len(got) != 2 || got[0] != "P@1" || got[1] != "Micro-F1" {
		t.Fatalf("Names() = %v, want [P@1 Micro-F1]", got)
	}
	if err := c.Update([][]float64{{0.9, 0.1}}, [][]int{{1, 0}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	vals := c.Compute()
	almost(t, vals["P@1"], 1, "collection P@1")
	almost(t, vals["Micro-F1"], 1, "collection Micro-F1")

	c.Reset()
	vals = c.Compute()
	almost(t, vals["P@1"], 0, "collection P@1 after Reset")
}

func TestNewCollection_UnknownMetric(t *testing.T) {
	if _, err := NewCollection([]string{"P@1", "NDCG@3"}, 0.5, false); err == nil {
		t.Error("unknown metric accepted")
	}
}

func TestTabulate(t *testing.T) {
	out := Tabulate([]string{"P@1", "Macro-F1", "Loss"}, map[string]float64{
		"P@1":      0.75,
		"Macro-F1": 0.5,
	}, "test")
	if !strings.Contains(out, "====== test dataset evaluation result =======") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "75.0000") || !strings.Contains(out, "50.0000") {
		t.Errorf("missing percentage values:\n%s", out)
	}
	if strings.Contains(out, "Loss") {
		t.Errorf("valueless metric rendered:\n%s", out)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Errorf("got %d lines, want header + 3 table rows:\n%s", len(lines), out)
	}
}

func TestTabulate_Empty(t *testing.T) {
	out := Tabulate([]string{"P@1"}, nil, "val")
	if !strings.Contains(out, "(no metrics)") {
		t.Errorf("missing placeholder:\n%s", out)
	}
}
