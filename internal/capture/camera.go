// Package capture reads video frames from a webcam, a video file or a network stream.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings
const (
	DefaultFPS    = 15
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when reading from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrReadFailed is returned when the source yields no frame.
	ErrReadFailed = errors.New("failed to read frame")
)

// Camera is a frame source. ReadFrame returns a Mat the caller must Close.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Source identifies a capture device. A decimal string selects a local
// device index; anything else is passed to OpenCV as a file path or URL.
type Source string

// Device returns the value handed to gocv.OpenVideoCapture.
func (s Source) Device() any {
	trimmed := strings.TrimSpace(string(s))
	if idx, err := strconv.Atoi(trimmed); err == nil && idx >= 0 {
		return idx
	}
	return trimmed
}

// IsDevice reports whether the source is a local device index.
func (s Source) IsDevice() bool {
	_, ok := s.Device().(int)
	return ok
}

func (s Source) String() string {
	if s.IsDevice() {
		return "camera " + strings.TrimSpace(string(s))
	}
	return string(s)
}

type cameraImpl struct {
	source  Source
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a Camera for source. It is not opened until Open.
func NewCamera(source Source) Camera {
	return &cameraImpl{
		source: source,
		fps:    DefaultFPS,
	}
}

// Open opens the source. Local devices are asked for 640x480.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if strings.TrimSpace(string(c.source)) == "" {
		return errors.New("capture source is empty")
	}

	capture, err := gocv.OpenVideoCapture(c.source.Device())
	if err != nil {
		return fmt.Errorf("open %s: %w", c.source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open %s: device unavailable", c.source)
	}

	if c.source.IsDevice() {
		capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close releases the device. Closing twice is harmless.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%s: %w", c.source, ErrReadFailed)
	}

	return &mat, nil
}

// SetFPS ignores values less than or equal to 0.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
