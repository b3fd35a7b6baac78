package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/detector"
	"github.com/ayusman/safeschool/internal/gallery"
	"github.com/ayusman/safeschool/internal/notify"
)

// Dispatcher delivers allowed events.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.Report
}

// MessageFunc renders the guardian message for an identity entering at t.
type MessageFunc func(label string, t time.Time) string

// DefaultMessage is the stock "student entered" text.
func DefaultMessage(label string, t time.Time) string {
	return fmt.Sprintf("✅ %s entered the school at %s", label, t.Format("2006-01-02 15:04:05"))
}

// Outcome describes what one frame did to the pipeline.
type Outcome struct {
	Face      detector.Face
	HasFace   bool
	Match     gallery.Result
	Holding   bool          // an identity is being held (or just fired)
	Held      time.Duration // length of that hold
	Confirmed *Confirmed    // set when the debouncer fired this frame
	Allowed   bool          // set when the cooldown gate let Confirmed through
	Text      string        // message sent when Allowed
	Report    notify.Report
}

// AnnotateFunc draws an outcome onto the frame before it is dispatched.
type AnnotateFunc func(frame *gocv.Mat, out Outcome)

// Pipeline runs the per-frame stages in order: largest face, match, debounce,
// cooldown, dispatch. It is not safe for concurrent use.
type Pipeline struct {
	matcher    *gallery.Matcher
	debouncer  *Debouncer
	gate       *CooldownGate
	dispatcher Dispatcher
	message    MessageFunc
	annotate   AnnotateFunc
}

// Config wires the stages of a Pipeline.
type Config struct {
	Matcher      *gallery.Matcher
	StableWindow time.Duration
	Cooldown     time.Duration
	Dispatcher   Dispatcher
	Message      MessageFunc
	Annotate     AnnotateFunc
}

// New creates a Pipeline from the given configuration.
func New(cfg Config) *Pipeline {
	message := cfg.Message
	if message == nil {
		message = DefaultMessage
	}
	return &Pipeline{
		matcher:    cfg.Matcher,
		debouncer:  NewDebouncer(cfg.StableWindow),
		gate:       NewCooldownGate(cfg.Cooldown),
		dispatcher: cfg.Dispatcher,
		message:    message,
		annotate:   cfg.Annotate,
	}
}

// Evaluate processes the detections of one frame captured at now.
// frame, when non-nil, is annotated and attached to the notification as a snapshot.
func (p *Pipeline) Evaluate(ctx context.Context, faces []detector.Face, frame *gocv.Mat, now time.Time) Outcome {
	var out Outcome

	face, ok := detector.Largest(faces)
	label := ""
	if ok {
		out.Face = face
		out.HasFace = true
		out.Match = p.matcher.Match(face.Embedding)
		label = out.Match.Label
	}

	ev, fired := p.debouncer.Observe(label, now)
	if fired {
		out.Confirmed = &ev
		out.Holding = true
		out.Held = ev.At.Sub(ev.Since)
	} else if _, held, ok := p.debouncer.Holding(now); ok {
		out.Holding = true
		out.Held = held
	}

	if frame != nil && p.annotate != nil {
		p.annotate(frame, out)
	}
	if !fired {
		return out
	}

	if !p.gate.Allow(ev.Label, now) {
		log.Printf("event for %s suppressed by cooldown", ev.Label)
		return out
	}
	out.Allowed = true
	out.Text = p.message(ev.Label, now)

	if p.dispatcher != nil {
		out.Report = p.dispatcher.Dispatch(ctx, notify.Notification{
			StudentID: ev.Label,
			Text:      out.Text,
			Image:     frame,
		})
	}

	return out
}

// Reset drops any in-progress hold, e.g. while recognition is paused.
func (p *Pipeline) Reset() { p.debouncer.Reset() }

// Debouncer exposes the stability state for rendering.
func (p *Pipeline) Debouncer() *Debouncer { return p.debouncer }

// Gate exposes the cooldown gate.
func (p *Pipeline) Gate() *CooldownGate { return p.gate }

// Matcher returns the gallery matcher.
func (p *Pipeline) Matcher() *gallery.Matcher { return p.matcher }
