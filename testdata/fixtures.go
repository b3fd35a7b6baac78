// Package testdata provides synthetic galleries, embeddings and frames for tests.
package testdata

import (
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/detector"
	"github.com/ayusman/safeschool/internal/gallery"
)

// Dim is the dimensionality of the synthetic embeddings.
const Dim = 8

// Basis returns the unit vector along axis i.
func Basis(i int) []float64 {
	v := make([]float64, Dim)
	v[i%Dim] = 1
	return v
}

// Near returns a unit vector whose cosine similarity with Basis(i) is exactly cos.
func Near(i int, cos float64) []float64 {
	v := make([]float64, Dim)
	v[i%Dim] = cos
	v[(i+1)%Dim] = math.Sqrt(1 - cos*cos)
	return v
}

// Students are the identities of Gallery, one basis axis each.
var Students = []string{"ivan", "olga", "petr"}

// GalleryFile returns the on-disk form of the synthetic gallery. ivan has two
// references to exercise repeated labels.
func GalleryFile() *gallery.File {
	f := &gallery.File{}
	for i, name := range Students {
		f.Names = append(f.Names, name)
		f.Embs = append(f.Embs, Basis(i))
	}
	f.Names = append(f.Names, "ivan")
	f.Embs = append(f.Embs, Near(0, 0.95))
	return f
}

// Gallery loads GalleryFile. It panics on error since the fixture is fixed.
func Gallery() *gallery.Gallery {
	f := GalleryFile()
	g, err := gallery.Load(f.Names, f.Embs)
	if err != nil {
		panic(err)
	}
	return g
}

// FaceOf returns a detection of student i with the given similarity, drawn
// at a fixed box of the given size.
func FaceOf(i int, cos float64, size float64) detector.Face {
	return detector.FaceAt(40, 30, size, size*1.2, Near(i, cos))
}

// Frame returns a blank BGR frame. The caller must Close it.
func Frame() gocv.Mat {
	return gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
}
