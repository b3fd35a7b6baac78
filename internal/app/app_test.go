package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/capture"
	"github.com/ayusman/safeschool/internal/detector"
	"github.com/ayusman/safeschool/internal/gallery"
	"github.com/ayusman/safeschool/internal/notify"
	"github.com/ayusman/safeschool/internal/pipeline"
	"github.com/ayusman/safeschool/internal/store"
)

type recordingDispatcher struct {
	mu            sync.Mutex
	notifications []notify.Notification
	withImage     int
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, n notify.Notification) notify.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	if n.Image != nil && !n.Image.Empty() {
		r.withImage++
	}
	return notify.Report{Destinations: 2, Delivered: 1, Failures: []notify.Failure{{ChatID: 9, Err: errors.New("blocked")}}}
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

type recordingEvents struct {
	events []*store.Event
}

func (r *recordingEvents) Record(e *store.Event) error {
	r.events = append(r.events, e)
	return nil
}

type recordingFeed struct {
	messages []any
}

func (r *recordingFeed) Broadcast(v any) { r.messages = append(r.messages, v) }

// fakeDisplay quits after a fixed number of frames.
type fakeDisplay struct {
	shown  int
	quitAt int
	closed int
}

func (d *fakeDisplay) Show(frame *gocv.Mat) bool {
	d.shown++
	return d.quitAt > 0 && d.shown >= d.quitAt
}

func (d *fakeDisplay) Close() error {
	d.closed++
	return nil
}

// stepClock advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

type fixture struct {
	camera     *capture.MockCamera
	detector   *detector.MockDetector
	dispatcher *recordingDispatcher
	events     *recordingEvents
	feed       *recordingFeed
	display    *fakeDisplay
	app        *App
	lastEvent  *store.Event
}

func newFixture(t *testing.T, quitAt int) *fixture {
	t.Helper()

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	g, err := gallery.Load([]string{"ivan"}, [][]float64{{1, 0, 0}})
	if err != nil {
		t.Fatalf("gallery.Load() error = %v", err)
	}

	f := &fixture{
		camera:     capture.NewMockCamera([]*gocv.Mat{&frame}, true),
		detector:   detector.NewMockDetector(),
		dispatcher: &recordingDispatcher{},
		events:     &recordingEvents{},
		feed:       &recordingFeed{},
		display:    &fakeDisplay{quitAt: quitAt},
	}
	f.detector.SetFaces([]detector.Face{detector.FaceAt(20, 20, 60, 80, []float64{0.95, 0.3, 0})})

	f.app = New(Config{
		Camera:   f.camera,
		Detector: f.detector,
		Pipeline: pipeline.Config{
			Matcher:      gallery.NewMatcher(g, gallery.DefaultThreshold),
			StableWindow: 2 * time.Second,
			Cooldown:     120 * time.Second,
			Dispatcher:   f.dispatcher,
		},
		Events:  f.events,
		Feed:    f.feed,
		Display: f.display,
		OnEvent: func(e *store.Event) { f.lastEvent = e },
		Clock:   stepClock(100 * time.Millisecond),
	})
	return f
}

func (f *fixture) assertReleased(t *testing.T) {
	t.Helper()

	if f.camera.IsOpen() || f.camera.Closed() != 1 {
		t.Errorf("camera closed %d times, want 1", f.camera.Closed())
	}
	if !f.detector.Closed() {
		t.Error("detector was not closed")
	}
	if f.display.closed != 1 {
		t.Errorf("display closed %d times, want 1", f.display.closed)
	}
}

func TestApp_RunNotifiesOnceForSteadyFace(t *testing.T) {
	// 30 frames at 100ms: one hold fires at 2.0s, the re-hold cannot finish by 3.0s.
	f := newFixture(t, 30)

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if f.dispatcher.count() != 1 {
		t.Fatalf("dispatches = %d, want 1", f.dispatcher.count())
	}
	n := f.dispatcher.notifications[0]
	if n.StudentID != "ivan" {
		t.Errorf("StudentID = %q", n.StudentID)
	}
	if f.dispatcher.withImage != 1 {
		t.Error("notification should carry the frame")
	}

	if len(f.events.events) != 1 {
		t.Fatalf("recorded events = %d, want 1", len(f.events.events))
	}
	e := f.events.events[0]
	if e.Destinations != 2 || e.Delivered != 1 || e.Failures != 1 {
		t.Errorf("event delivery = %+v", e)
	}
	if len(f.feed.messages) != 1 {
		t.Errorf("feed messages = %d, want 1", len(f.feed.messages))
	}
	if f.lastEvent == nil || f.app.LastStudent() != "ivan" {
		t.Error("OnEvent/LastStudent not updated")
	}
	if f.display.shown != 30 {
		t.Errorf("frames shown = %d, want 30", f.display.shown)
	}

	f.assertReleased(t)
}

func TestApp_CaptureFailureEndsRun(t *testing.T) {
	f := newFixture(t, 0)
	f.camera.FailAfter(3)

	err := f.app.Run(context.Background())
	if !errors.Is(err, capture.ErrReadFailed) {
		t.Fatalf("Run() error = %v, want ErrReadFailed", err)
	}
	if f.display.shown != 3 {
		t.Errorf("frames shown = %d, want 3", f.display.shown)
	}

	f.assertReleased(t)
}

func TestApp_CancelledContext(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.app.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.camera.Reads() != 0 {
		t.Errorf("reads = %d, want 0", f.camera.Reads())
	}

	f.assertReleased(t)
}

func TestApp_CancelBetweenFrames(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	shown := 0
	f.app.config.Display = displayFunc(func() bool {
		shown++
		if shown == 5 {
			cancel()
		}
		return false
	})

	if err := f.app.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if shown != 5 {
		t.Errorf("frames after cancel: shown = %d, want 5", shown)
	}
}

func TestApp_DisabledTreatsFramesAsEmpty(t *testing.T) {
	f := newFixture(t, 30)
	f.app.SetEnabled(false)

	if f.app.IsEnabled() {
		t.Fatal("IsEnabled() = true after SetEnabled(false)")
	}
	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if f.detector.Calls() != 0 {
		t.Errorf("detector called %d times while disabled", f.detector.Calls())
	}
	if f.dispatcher.count() != 0 {
		t.Error("disabled loop dispatched")
	}
	if f.display.shown != 30 {
		t.Errorf("disabled loop should still render, shown = %d", f.display.shown)
	}
}

func TestApp_DetectErrorCountsAsNoFace(t *testing.T) {
	f := newFixture(t, 30)
	f.detector.SetError(errors.New("inference failed"))

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.dispatcher.count() != 0 {
		t.Error("failed detection dispatched")
	}
	if f.detector.Calls() != 30 {
		t.Errorf("detector calls = %d, want 30", f.detector.Calls())
	}
}

func TestApp_RequiresCameraAndDetector(t *testing.T) {
	a := New(Config{})
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run() without camera should fail")
	}
}

type displayFunc func() bool

func (f displayFunc) Show(*gocv.Mat) bool { return f() }
func (f displayFunc) Close() error        { return nil }

// cancellingTransport cancels the run on its first call and records whether
// each later call saw a live context.
type cancellingTransport struct {
	cancel   context.CancelFunc
	attempts map[int64]error
}

func (c *cancellingTransport) SendText(ctx context.Context, chatID int64, text string, silent bool) error {
	c.cancel()
	c.attempts[chatID] = ctx.Err()
	return ctx.Err()
}

func (c *cancellingTransport) SendImage(ctx context.Context, chatID int64, filename string, data []byte) error {
	return ctx.Err()
}

func TestApp_ShutdownDoesNotAbortDispatch(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := &cancellingTransport{cancel: cancel, attempts: map[int64]error{}}
	g, _ := gallery.Load([]string{"ivan"}, [][]float64{{1, 0, 0}})
	events := &recordingEvents{}
	a := New(Config{
		Camera:   f.camera,
		Detector: f.detector,
		Pipeline: pipeline.Config{
			Matcher:      gallery.NewMatcher(g, gallery.DefaultThreshold),
			StableWindow: 2 * time.Second,
			Dispatcher: notify.NewDispatcher(notify.Snapshot{"ivan": {1, 2, 3}}, transport,
				notify.WithEncoder(func(*gocv.Mat) ([]byte, error) { return []byte{1}, nil })),
		},
		Events: events,
		Clock:  stepClock(100 * time.Millisecond),
	})

	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(transport.attempts) != 3 {
		t.Fatalf("attempted %d guardians, want 3", len(transport.attempts))
	}
	for chatID, err := range transport.attempts {
		if err != nil {
			t.Errorf("chat %d sent on a cancelled context: %v", chatID, err)
		}
	}
	if len(events.events) != 1 || events.events[0].Delivered != 3 {
		t.Errorf("events = %+v, want one event delivered to 3 chats", events.events)
	}
	if f.camera.Reads() != 21 {
		t.Errorf("reads = %d, want the loop to stop right after the dispatching frame", f.camera.Reads())
	}
}
