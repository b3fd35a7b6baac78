package gallery

import (
	"log"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// DefaultThreshold is the minimum cosine similarity accepted as a match.
const DefaultThreshold = 0.38

// Result is the outcome of matching one query vector.
// Label is empty when no entry reached the threshold; Score is still the best
// similarity seen (or -1 for an empty gallery) so callers can display it.
type Result struct {
	Label string
	Score float64
	Index int // best entry index, -1 when the gallery is empty
}

// Matched reports whether the result carries an identity.
func (r Result) Matched() bool { return r.Label != "" }

// Matcher scores query vectors against a gallery by cosine similarity.
type Matcher struct {
	gallery   *Gallery
	threshold float64
	dimWarn   sync.Once
}

// NewMatcher creates a Matcher. A nil gallery behaves as an empty one.
func NewMatcher(g *Gallery, threshold float64) *Matcher {
	if g == nil {
		g = &Gallery{byLabel: map[string][]int{}}
	}
	return &Matcher{gallery: g, threshold: threshold}
}

// Threshold returns the configured similarity threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Gallery returns the gallery being matched against.
func (m *Matcher) Gallery() *Gallery { return m.gallery }

// Match normalizes query and returns the label of the most similar entry when
// its similarity is at least the threshold. Ties resolve to the lowest index.
func (m *Matcher) Match(query []float64) Result {
	none := Result{Score: -1, Index: -1}
	if m.gallery.Len() == 0 {
		return none
	}
	if len(query) != m.gallery.Dim() {
		m.dimWarn.Do(func() {
			log.Printf("embedding dimension %d does not match gallery dimension %d, nothing will match (gallery enrolled with another detector backend?)",
				len(query), m.gallery.Dim())
		})
		return none
	}

	q := Normalize(query)

	best := -1
	bestScore := 0.0
	for i, e := range m.gallery.entries {
		score := floats.Dot(e.Vector, q)
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}

	res := Result{Score: bestScore, Index: best}
	if bestScore >= m.threshold {
		res.Label = m.gallery.entries[best].Label
	}
	return res
}
