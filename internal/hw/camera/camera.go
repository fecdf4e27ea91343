package camera

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable is returned when the capture device cannot be acquired.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrPreviewRunning is returned by SetResolution while the preview streams.
	ErrPreviewRunning = errors.New("preview is running")
	// ErrClosed is returned by any operation on a closed device.
	ErrClosed = errors.New("camera closed")
)

// Resolution is a capture size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Validate rejects empty or negative sizes.
func (r Resolution) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid resolution %s", r)
	}
	return nil
}

// Device is the capture device abstraction used by the capture loop.
// It represents one physical camera, regardless of how it's driven
// (libcamera tools, ffmpeg over V4L2, generated frames, etc.).
//
// Calls are synchronous; a Device is owned by a single goroutine.
type Device interface {
	// SetResolution selects the size of every subsequent capture.
	SetResolution(res Resolution) error
	// StartPreview starts the live preview feed.
	StartPreview() error
	// StopPreview stops the live preview feed. Stopping a stopped preview is a no-op.
	StopPreview() error
	// Capture writes one frame to path as a bitmap, replacing any previous file.
	Capture(ctx context.Context, path string) error
	// Close stops the preview and releases the device.
	Close() error
}
