package detector

import (
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"gocv.io/x/gocv"
)

// DlibDetector implements Detector in-process with dlib via go-face.
// Its embeddings are 128-dimensional, so it needs a gallery enrolled with the same backend.
type DlibDetector struct {
	rec *face.Recognizer
	mu  sync.Mutex
}

// NewDlibDetector loads the dlib models from config.ModelDir.
// The directory must contain shape_predictor_5_face_landmarks.dat and
// dlib_face_recognition_resnet_model_v1.dat.
func NewDlibDetector(config Config) (*DlibDetector, error) {
	if config.ModelDir == "" {
		return nil, fmt.Errorf("dlib model directory not configured")
	}

	rec, err := face.NewRecognizer(config.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models: %w", err)
	}

	return &DlibDetector{rec: rec}, nil
}

// Detect encodes the frame and runs dlib detection and descriptor extraction on it.
func (d *DlibDetector) Detect(frame *gocv.Mat) ([]Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec == nil {
		return nil, fmt.Errorf("dlib detector closed")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	found, err := d.rec.Recognize(buf.GetBytes())
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	faces := make([]Face, len(found))
	for i, f := range found {
		embedding := make([]float64, len(f.Descriptor))
		for j, v := range f.Descriptor {
			embedding[j] = float64(v)
		}
		faces[i] = Face{
			BBox:      BBoxFromRect(f.Rectangle),
			Embedding: embedding,
			Score:     1,
		}
	}

	return faces, nil
}

// Close releases the dlib recognizer.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}
