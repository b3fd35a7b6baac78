package app

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/pipeline"
)

// WindowTitle is the title of the preview window.
const WindowTitle = "Safeschool - Recognition"

var (
	colorKnown   = color.RGBA{G: 255}
	colorUnknown = color.RGBA{R: 255}
)

// Annotate draws the largest face box, its label and score, and the hold
// progress against window.
func Annotate(frame *gocv.Mat, out pipeline.Outcome, window time.Duration) {
	if out.HasFace {
		c := colorUnknown
		name := "unknown"
		if out.Match.Matched() {
			c = colorKnown
			name = out.Match.Label
		}

		rect := out.Face.BBox.Rect()
		gocv.Rectangle(frame, rect, c, 2)
		label := fmt.Sprintf("%s (%.2f)", name, out.Match.Score)
		gocv.PutText(frame, label, image.Pt(rect.Min.X, max(20, rect.Min.Y-10)),
			gocv.FontHersheySimplex, 0.7, c, 2)
	}

	if out.Holding && out.Held > 0 {
		gocv.PutText(frame, StableText(out.Held, window), image.Pt(10, 30),
			gocv.FontHersheySimplex, 0.8, colorKnown, 2)
	}
}

// StableText formats hold progress, e.g. "stable: 1.2s/2.0s".
func StableText(held, window time.Duration) string {
	return fmt.Sprintf("stable: %.1fs/%.1fs", held.Seconds(), window.Seconds())
}

// Window is a gocv preview window. q, Q or Esc asks to quit.
type Window struct {
	window *gocv.Window
}

// NewWindow opens the preview window.
func NewWindow(title string) *Window {
	w := gocv.NewWindow(title)
	w.SetWindowProperty(gocv.WindowPropertyAutosize, gocv.WindowNormal)
	return &Window{window: w}
}

// Show displays frame and polls the keyboard for 10ms.
func (w *Window) Show(frame *gocv.Mat) bool {
	w.window.IMShow(*frame)
	return isQuitKey(w.window.WaitKey(10))
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}

func isQuitKey(key int) bool {
	switch key & 0xFF {
	case 'q', 'Q', 27:
		return true
	}
	return false
}
