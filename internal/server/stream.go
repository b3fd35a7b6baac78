package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultStreamQuality is the JPEG quality of preview frames.
const DefaultStreamQuality = 70

// FrameHub holds the latest preview frame for MJPEG viewers. Publish only
// encodes while at least one viewer is attached.
type FrameHub struct {
	mu      sync.Mutex
	viewers int
	jpeg    []byte
	seq     uint64
	updated chan struct{}
	quality int
}

// NewFrameHub creates a hub with the default JPEG quality.
func NewFrameHub() *FrameHub {
	return &FrameHub{
		updated: make(chan struct{}),
		quality: DefaultStreamQuality,
	}
}

// Viewers returns the number of attached stream clients.
func (h *FrameHub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewers
}

// Publish offers a rendered frame to viewers. The frame is not retained.
func (h *FrameHub) Publish(frame *gocv.Mat) {
	if frame == nil || frame.Empty() || h.Viewers() == 0 {
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, h.quality})
	if err != nil {
		log.Printf("stream: encode frame: %v", err)
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	h.publishJPEG(data)
}

func (h *FrameHub) publishJPEG(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.jpeg = data
	h.seq++
	close(h.updated)
	h.updated = make(chan struct{})
}

// next blocks until a frame newer than seq is available or ctx ends.
func (h *FrameHub) next(ctx context.Context, seq uint64) ([]byte, uint64, bool) {
	for {
		h.mu.Lock()
		if h.seq > seq && h.jpeg != nil {
			data, cur := h.jpeg, h.seq
			h.mu.Unlock()
			return data, cur, true
		}
		wait := h.updated
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, seq, false
		case <-wait:
		}
	}
}

// ServeHTTP streams frames as multipart/x-mixed-replace until the client disconnects.
func (h *FrameHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.viewers++
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.viewers--
		h.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	var seq uint64
	for {
		data, cur, ok := h.next(r.Context(), seq)
		if !ok {
			return
		}
		seq = cur

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if flusher != nil {
			flusher.Flush()
		}
	}
}
