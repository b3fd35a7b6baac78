// Package app runs the SafeSchool recognition loop: capture, detect, match,
// debounce, cooldown, notify, render.
package app

import (
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/capture"
	"github.com/ayusman/safeschool/internal/detector"
	"github.com/ayusman/safeschool/internal/pipeline"
	"github.com/ayusman/safeschool/internal/store"
)

// EventRecorder persists allowed notification events.
type EventRecorder interface {
	Record(e *store.Event) error
}

// Broadcaster pushes allowed events to live subscribers.
type Broadcaster interface {
	Broadcast(v any)
}

// FramePublisher receives every rendered frame for preview streaming.
type FramePublisher interface {
	Publish(frame *gocv.Mat)
}

// Display shows rendered frames and reports whether the user asked to quit.
type Display interface {
	Show(frame *gocv.Mat) (quit bool)
	Close() error
}

// Config holds the collaborators of an App. Camera, Detector and Pipeline
// are required; the rest are optional.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	Pipeline pipeline.Config

	Events  EventRecorder
	Feed    Broadcaster
	Frames  FramePublisher
	Display Display

	// OnEvent is called after an allowed event has been recorded.
	OnEvent func(e *store.Event)

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// App owns the frame loop and its resources.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	pipeline *pipeline.Pipeline
	clock    func() time.Time

	enabled     bool
	lastStudent string
	mu          sync.RWMutex
}

// New creates an App. Overlays are drawn only when a display or frame
// publisher is configured, and always before the snapshot is dispatched.
func New(config Config) *App {
	a := &App{
		config:   config,
		camera:   config.Camera,
		detector: config.Detector,
		clock:    config.Clock,
		enabled:  true,
	}
	if a.clock == nil {
		a.clock = time.Now
	}

	pc := config.Pipeline
	if pc.Annotate == nil && (config.Display != nil || config.Frames != nil) {
		window := pc.StableWindow
		if window <= 0 {
			window = pipeline.DefaultStableWindow
		}
		pc.Annotate = func(frame *gocv.Mat, out pipeline.Outcome) {
			Annotate(frame, out, window)
		}
	}
	a.pipeline = pipeline.New(pc)

	return a
}

// SetEnabled pauses or resumes recognition. A paused loop keeps capturing
// and rendering but treats every frame as empty.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.enabled != enabled {
		log.Printf("recognition enabled: %v", enabled)
	}
	a.enabled = enabled
}

// IsEnabled returns whether recognition is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// LastStudent returns the identity of the most recent allowed event.
func (a *App) LastStudent() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastStudent
}

// Pipeline returns the event pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the face detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}
