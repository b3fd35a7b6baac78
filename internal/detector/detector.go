// Package detector provides face detection interfaces and types for identity recognition.
package detector

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns every detected face with its embedding.
	// Returns an empty slice if no faces are detected.
	Detect(frame *gocv.Mat) ([]Face, error)

	// Close releases any resources held by the detector.
	Close() error
}

// BBox is a face bounding box in pixel coordinates (top-left, bottom-right).
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Area returns width × height.
func (b BBox) Area() float64 { return b.Width() * b.Height() }

// Rect converts the box to an integer image.Rectangle for drawing.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// BBoxFromRect converts an image.Rectangle into a BBox.
func BBoxFromRect(r image.Rectangle) BBox {
	return BBox{
		X1: float64(r.Min.X),
		Y1: float64(r.Min.Y),
		X2: float64(r.Max.X),
		Y2: float64(r.Max.Y),
	}
}

// Face is a single detection: where the face is and its raw embedding vector.
type Face struct {
	BBox      BBox      `json:"bbox"`
	Embedding []float64 `json:"embedding"`
	Score     float64   `json:"score"` // detector confidence, informational only
}

// Largest returns the face with the biggest bounding-box area.
// Ties keep the first face encountered. ok is false for an empty slice.
func Largest(faces []Face) (largest Face, ok bool) {
	if len(faces) == 0 {
		return Face{}, false
	}

	best := 0
	bestArea := faces[0].BBox.Area()
	for i := 1; i < len(faces); i++ {
		if area := faces[i].BBox.Area(); area > bestArea {
			best = i
			bestArea = area
		}
	}

	return faces[best], true
}

// Config holds configuration options for face detection.
type Config struct {
	// DetSize is the square input resolution used by the detection model (default: 640).
	DetSize int

	// MinScore is the minimum detection confidence threshold (0.0-1.0).
	MinScore float64

	// Script overrides the location of the InsightFace service script.
	Script string

	// ModelDir is the directory holding the dlib model files.
	ModelDir string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		DetSize:  640,
		MinScore: 0.5,
	}
}

// New builds the detector selected by backend ("insightface", "dlib" or "mock").
func New(backend string, config Config) (Detector, error) {
	switch backend {
	case "insightface", "":
		d, err := NewInsightFaceDetector(config)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "dlib":
		d, err := NewDlibDetector(config)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "mock":
		return NewMockDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", backend)
	}
}
