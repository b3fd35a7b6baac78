package app

import (
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/detector"
	"github.com/ayusman/safeschool/internal/gallery"
	"github.com/ayusman/safeschool/internal/pipeline"
)

func TestStableText(t *testing.T) {
	tests := []struct {
		held   time.Duration
		window time.Duration
		want   string
	}{
		{1200 * time.Millisecond, 2 * time.Second, "stable: 1.2s/2.0s"},
		{0, 2 * time.Second, "stable: 0.0s/2.0s"},
		{2500 * time.Millisecond, 3 * time.Second, "stable: 2.5s/3.0s"},
	}

	for _, tt := range tests {
		if got := StableText(tt.held, tt.window); got != tt.want {
			t.Errorf("StableText(%v, %v) = %q, want %q", tt.held, tt.window, got, tt.want)
		}
	}
}

func TestIsQuitKey(t *testing.T) {
	for key, want := range map[int]bool{'q': true, 'Q': true, 27: true, 'x': false, -1: false} {
		if got := isQuitKey(key); got != want {
			t.Errorf("isQuitKey(%d) = %v, want %v", key, got, want)
		}
	}
}

func countDrawn(t *testing.T, frame *gocv.Mat) int {
	t.Helper()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	return gocv.CountNonZero(gray)
}

func TestAnnotate(t *testing.T) {
	t.Run("nothing to draw", func(t *testing.T) {
		frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
		defer frame.Close()

		Annotate(&frame, pipeline.Outcome{}, 2*time.Second)
		if n := countDrawn(t, &frame); n != 0 {
			t.Errorf("empty outcome drew %d pixels", n)
		}
	})

	t.Run("face box and hold progress", func(t *testing.T) {
		frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
		defer frame.Close()

		out := pipeline.Outcome{
			Face:    detector.FaceAt(20, 30, 50, 60, nil),
			HasFace: true,
			Match:   gallery.Result{Label: "ivan", Score: 0.8},
			Holding: true,
			Held:    time.Second,
		}
		Annotate(&frame, out, 2*time.Second)
		if n := countDrawn(t, &frame); n == 0 {
			t.Error("annotation drew nothing")
		}
	})
}
