package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/detector"
	"github.com/ayusman/safeschool/internal/pipeline"
	"github.com/ayusman/safeschool/internal/server/api"
	"github.com/ayusman/safeschool/internal/store"
)

// Run captures and processes frames until ctx is cancelled, the display asks
// to quit, or the camera fails. Cancellation is observed between frames only,
// so an in-flight dispatch always completes. Camera, display and detector are
// released on every exit path. Only a capture failure is an error.
func (a *App) Run(ctx context.Context) error {
	if a.camera == nil || a.detector == nil {
		return errors.New("app: camera and detector are required")
	}
	defer a.release()

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	log.Printf("recognition loop started")

	for {
		select {
		case <-ctx.Done():
			log.Printf("recognition loop stopped")
			return nil
		default:
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}

		quit := a.step(ctx, frame)
		frame.Close()

		if quit {
			log.Printf("recognition loop stopped from the preview window")
			return nil
		}
	}
}

// step processes one frame and reports whether the display asked to quit.
func (a *App) step(ctx context.Context, frame *gocv.Mat) bool {
	now := a.clock()

	var faces []detector.Face
	if a.IsEnabled() {
		var err error
		faces, err = a.detector.Detect(frame)
		if err != nil {
			log.Printf("detect: %v", err)
			faces = nil
		}
	}

	// Shutdown must not cut a dispatch short; each send keeps its own timeout.
	out := a.pipeline.Evaluate(context.WithoutCancel(ctx), faces, frame, now)
	if out.Allowed {
		a.record(out)
	}

	if a.config.Frames != nil {
		a.config.Frames.Publish(frame)
	}
	if a.config.Display != nil {
		return a.config.Display.Show(frame)
	}
	return false
}

func (a *App) record(out pipeline.Outcome) {
	e := &store.Event{
		StudentID:    out.Confirmed.Label,
		Score:        out.Match.Score,
		OccurredAt:   out.Confirmed.At,
		Destinations: out.Report.Destinations,
		Delivered:    out.Report.Delivered,
		Failures:     len(out.Report.Failures),
	}
	log.Println(out.Text)

	a.mu.Lock()
	a.lastStudent = e.StudentID
	a.mu.Unlock()

	if a.config.Events != nil {
		if err := a.config.Events.Record(e); err != nil {
			log.Printf("record event for %s: %v", e.StudentID, err)
		}
	}
	if a.config.Feed != nil {
		a.config.Feed.Broadcast(api.NewEventResponse(e))
	}
	if a.config.OnEvent != nil {
		a.config.OnEvent(e)
	}
}

func (a *App) release() {
	if err := a.camera.Close(); err != nil {
		log.Printf("error closing camera: %v", err)
	}
	if a.config.Display != nil {
		if err := a.config.Display.Close(); err != nil {
			log.Printf("error closing window: %v", err)
		}
	}
	if err := a.detector.Close(); err != nil {
		log.Printf("error closing detector: %v", err)
	}
}
