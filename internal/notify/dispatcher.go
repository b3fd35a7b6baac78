// Package notify delivers "student entered" messages to the guardians bound to a student.
package notify

import (
	"context"
	"fmt"
	"log"

	"gocv.io/x/gocv"
)

// ImageName is the attachment file name used for snapshots.
const ImageName = "frame.jpg"

// Registry resolves a student to the chat destinations of their guardians.
type Registry interface {
	Lookup(studentID string) ([]int64, error)
}

// Transport sends messages to a single chat destination.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, silent bool) error
	SendImage(ctx context.Context, chatID int64, filename string, data []byte) error
}

// Notification is one allowed event to deliver.
type Notification struct {
	StudentID string
	Text      string
	Image     *gocv.Mat // optional snapshot
}

// Failure records a destination whose delivery did not complete.
type Failure struct {
	ChatID int64
	Err    error
}

// Report summarizes one dispatch. Transport errors end up here, never as a return error.
type Report struct {
	Destinations int
	Delivered    int
	Failures     []Failure
}

// OK reports whether every destination received its messages.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Dispatcher fans a notification out to every guardian destination in order.
type Dispatcher struct {
	registry  Registry
	transport Transport
	silent    bool
	encode    func(*gocv.Mat) ([]byte, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSilent sets the transport's silent-delivery flag on text messages.
func WithSilent(silent bool) Option {
	return func(d *Dispatcher) { d.silent = silent }
}

// WithEncoder replaces the snapshot encoder (JPEG by default).
func WithEncoder(encode func(*gocv.Mat) ([]byte, error)) Option {
	return func(d *Dispatcher) { d.encode = encode }
}

// NewDispatcher creates a Dispatcher. Text messages are sent silently unless overridden.
func NewDispatcher(registry Registry, transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		transport: transport,
		silent:    true,
		encode:    EncodeJPEG,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends n.Text, then the optional snapshot, to each destination of
// n.StudentID. A destination that fails is logged and skipped; the remaining
// destinations are still attempted and nothing already sent is undone.
// A student without guardians is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) Report {
	var report Report

	chats, err := d.registry.Lookup(n.StudentID)
	if err != nil {
		log.Printf("guardian lookup for %s failed: %v", n.StudentID, err)
		return report
	}
	if len(chats) == 0 {
		return report
	}
	report.Destinations = len(chats)

	var (
		image   []byte
		encoded bool
	)

	for _, chatID := range chats {
		if err := d.transport.SendText(ctx, chatID, n.Text, d.silent); err != nil {
			log.Printf("send text to %d failed: %v", chatID, err)
			report.Failures = append(report.Failures, Failure{ChatID: chatID, Err: err})
			continue
		}

		if n.Image != nil && !n.Image.Empty() {
			if !encoded {
				encoded = true
				image, err = d.encode(n.Image)
				if err != nil {
					log.Printf("encode snapshot for %s failed: %v", n.StudentID, err)
				}
			}
			if image != nil {
				if err := d.transport.SendImage(ctx, chatID, ImageName, image); err != nil {
					log.Printf("send image to %d failed: %v", chatID, err)
					report.Failures = append(report.Failures, Failure{ChatID: chatID, Err: err})
					continue
				}
			}
		}

		report.Delivered++
	}

	return report
}

// EncodeJPEG compresses a frame to JPEG bytes.
func EncodeJPEG(frame *gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
