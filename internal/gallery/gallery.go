// Package gallery holds the reference face embeddings of known students and
// scores query embeddings against them.
package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/safeschool/internal/ident"
)

// normEpsilon floors vector norms so zero vectors do not divide by zero.
const normEpsilon = 1e-9

// ErrMalformed is returned when gallery data is structurally invalid.
var ErrMalformed = errors.New("malformed gallery")

// Entry is one reference vector of a known identity. The vector is unit length.
type Entry struct {
	Label  string
	Vector []float64
}

// Identity groups every reference entry that shares a label.
type Identity struct {
	Label   string
	Entries []int // indices into the gallery, in load order
}

// Gallery is an immutable set of normalized reference vectors.
// A label may own several entries.
type Gallery struct {
	entries []Entry
	byLabel map[string][]int
	order   []string
	dim     int
}

// Load builds a gallery from parallel label and vector slices, normalizing
// every vector and every label. All vectors must share one non-zero dimensionality.
func Load(labels []string, vectors [][]float64) (*Gallery, error) {
	if len(labels) != len(vectors) {
		return nil, fmt.Errorf("%w: %d labels for %d vectors", ErrMalformed, len(labels), len(vectors))
	}

	g := &Gallery{
		entries: make([]Entry, 0, len(vectors)),
		byLabel: make(map[string][]int),
	}

	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: entry %d has an empty vector", ErrMalformed, i)
		}
		if g.dim == 0 {
			g.dim = len(v)
		} else if len(v) != g.dim {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, want %d", ErrMalformed, i, len(v), g.dim)
		}
		label := ident.Normalize(labels[i])
		if label == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty label", ErrMalformed, i)
		}

		if _, seen := g.byLabel[label]; !seen {
			g.order = append(g.order, label)
		}
		g.byLabel[label] = append(g.byLabel[label], len(g.entries))
		g.entries = append(g.entries, Entry{Label: label, Vector: Normalize(v)})
	}

	return g, nil
}

// Len returns the number of reference entries.
func (g *Gallery) Len() int { return len(g.entries) }

// Dim returns the vector dimensionality, or 0 for an empty gallery.
func (g *Gallery) Dim() int { return g.dim }

// Entry returns the i-th entry in load order.
func (g *Gallery) Entry(i int) Entry { return g.entries[i] }

// Identities returns every label with the indices of its entries, in first-seen order.
func (g *Gallery) Identities() []Identity {
	ids := make([]Identity, 0, len(g.order))
	for _, label := range g.order {
		ids = append(ids, Identity{Label: label, Entries: g.byLabel[label]})
	}
	return ids
}

// Has reports whether label has at least one entry.
func (g *Gallery) Has(label string) bool {
	_, ok := g.byLabel[label]
	return ok
}

// Normalize returns a unit-length copy of v. Norms below a small epsilon are
// clamped so a zero vector stays zero instead of producing NaNs.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	n := floats.Norm(out, 2)
	if n < normEpsilon {
		n = normEpsilon
	}
	floats.Scale(1/n, out)
	return out
}

// File is the on-disk gallery format: parallel arrays of labels and vectors.
type File struct {
	Names []string    `json:"names"`
	Embs  [][]float64 `json:"embs"`
}

// ReadFile decodes a gallery file. Both arrays must be present; their
// contents are validated by Load.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.Names == nil || f.Embs == nil {
		return nil, fmt.Errorf("%w: %s lacks names or embs", ErrMalformed, path)
	}
	return &f, nil
}

// WriteFile stores f at path, replacing any previous content.
func WriteFile(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write gallery: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFile reads and validates the gallery file at path.
// A missing or malformed file is an error; the pipeline cannot run without it.
func LoadFile(path string) (*Gallery, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(f.Names, f.Embs)
}
