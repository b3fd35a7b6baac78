package gallery

import (
	"bytes"
	"log"
	"math"
	"os"
	"strings"
	"testing"
)

func mustLoad(t *testing.T, labels []string, vectors [][]float64) *Gallery {
	t.Helper()
	g, err := Load(labels, vectors)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return g
}

func TestMatcher_SelfMatch(t *testing.T) {
	vectors := [][]float64{
		{1, 0, 0, 0},
		{0, 2, 0, 0},
		{0, 0, 0.5, 0.5},
	}
	labels := []string{"ivan", "olga", "petr"}
	m := NewMatcher(mustLoad(t, labels, vectors), DefaultThreshold)

	for i, v := range vectors {
		res := m.Match(v)
		if res.Label != labels[i] {
			t.Errorf("Match(%v) label = %q, want %q", v, res.Label, labels[i])
		}
		if math.Abs(res.Score-1) > epsilon {
			t.Errorf("Match(%v) score = %v, want 1", v, res.Score)
		}
		if res.Index != i {
			t.Errorf("Match(%v) index = %d, want %d", v, res.Index, i)
		}
	}
}

func TestMatcher_ScaleInvariant(t *testing.T) {
	m := NewMatcher(mustLoad(t, []string{"ivan"}, [][]float64{{1, 1}}), DefaultThreshold)

	res := m.Match([]float64{10, 10})
	if res.Label != "ivan" || math.Abs(res.Score-1) > epsilon {
		t.Errorf("Match() = %+v, want ivan with score 1", res)
	}
}

func TestMatcher_BelowThreshold(t *testing.T) {
	m := NewMatcher(mustLoad(t, []string{"ivan"}, [][]float64{{1, 0}}), DefaultThreshold)

	// cos = 0.3 < 0.38
	query := []float64{0.3, math.Sqrt(1 - 0.09)}
	res := m.Match(query)

	if res.Matched() {
		t.Errorf("expected no identity, got %q", res.Label)
	}
	if math.Abs(res.Score-0.3) > 1e-6 {
		t.Errorf("Score = %v, want best observed score 0.3", res.Score)
	}
}

func TestMatcher_ThresholdInclusive(t *testing.T) {
	m := NewMatcher(mustLoad(t, []string{"ivan"}, [][]float64{{1, 0}}), 0.5)

	// cos = 0.6 clears a 0.5 threshold, cos = 0.4 does not
	if res := m.Match([]float64{0.6, 0.8}); res.Label != "ivan" {
		t.Errorf("expected match at 0.6, got %+v", res)
	}
	if res := m.Match([]float64{0.4, math.Sqrt(1 - 0.16)}); res.Matched() {
		t.Errorf("expected no match at 0.4, got %+v", res)
	}
}

func TestMatcher_EmptyGallery(t *testing.T) {
	for _, m := range []*Matcher{
		NewMatcher(mustLoad(t, nil, nil), -1),
		NewMatcher(nil, DefaultThreshold),
	} {
		res := m.Match([]float64{1, 0})
		if res.Matched() {
			t.Errorf("empty gallery matched %q", res.Label)
		}
		if res.Index != -1 {
			t.Errorf("Index = %d, want -1", res.Index)
		}
	}
}

func TestMatcher_DimensionMismatch(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	m := NewMatcher(mustLoad(t, []string{"ivan"}, [][]float64{{1, 0}}), DefaultThreshold)

	for i := 0; i < 3; i++ {
		if res := m.Match([]float64{1, 0, 0}); res.Matched() {
			t.Errorf("mismatched query matched %q", res.Label)
		}
	}

	if n := strings.Count(buf.String(), "does not match gallery dimension"); n != 1 {
		t.Errorf("dimension warning logged %d times, want once:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "dimension 3") {
		t.Errorf("warning should name the query dimension: %s", buf.String())
	}
}

func TestMatcher_TieBreaksOnFirstIndex(t *testing.T) {
	g := mustLoad(t,
		[]string{"olga", "ivan", "olga"},
		[][]float64{{0, 1}, {1, 0}, {1, 0}},
	)
	m := NewMatcher(g, DefaultThreshold)

	res := m.Match([]float64{1, 0})
	if res.Label != "ivan" || res.Index != 1 {
		t.Errorf("Match() = %+v, want ivan at index 1", res)
	}
}

func TestMatcher_ArgmaxAcrossRepeatedLabels(t *testing.T) {
	g := mustLoad(t,
		[]string{"ivan", "olga", "ivan"},
		[][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	)
	m := NewMatcher(g, DefaultThreshold)

	res := m.Match([]float64{0.1, 0.2, 0.9})
	if res.Label != "ivan" || res.Index != 2 {
		t.Errorf("Match() = %+v, want ivan via second reference", res)
	}
}
