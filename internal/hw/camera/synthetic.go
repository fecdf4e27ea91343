package camera

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/cjeanneret/LotCam/internal/debug"
	"github.com/disintegration/imaging"
)

// Synthetic is a Device that renders frames instead of reading a sensor.
// Each frame has a different background shade and a marker that moves
// across the image, so two successive snapshots never share content.
// Used for development on PC and in tests.
type Synthetic struct {
	mu           sync.Mutex
	res          Resolution
	previewing   bool
	closed       bool
	frames       int
	previewStops int
}

// NewSynthetic returns a Synthetic device at the default 1280x720.
func NewSynthetic() *Synthetic {
	return &Synthetic{res: Resolution{Width: 1280, Height: 720}}
}

func (s *Synthetic) SetResolution(res Resolution) error {
	if err := res.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.previewing {
		return ErrPreviewRunning
	}
	s.res = res
	return nil
}

func (s *Synthetic) StartPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	debug.Verbose("Synthetic camera: preview on (%s)", s.res)
	s.previewing = true
	return nil
}

func (s *Synthetic) StopPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.previewing {
		return nil
	}
	debug.Verbose("Synthetic camera: preview off")
	s.previewing = false
	s.previewStops++
	return nil
}

func (s *Synthetic) Capture(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.frames++
	n, res := s.frames, s.res
	s.mu.Unlock()

	return WriteBMP(path, Render(res, n), res)
}

func (s *Synthetic) Close() error {
	err := s.StopPreview()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// Frames returns the number of frames captured so far.
func (s *Synthetic) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// PreviewStops returns how many times a running preview was stopped.
func (s *Synthetic) PreviewStops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewStops
}

// Previewing reports whether the preview is on.
func (s *Synthetic) Previewing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewing
}

// Render draws frame number n at res.
func Render(res Resolution, n int) image.Image {
	shade := uint8(40 + (n*23)%160)
	frame := imaging.New(res.Width, res.Height, color.NRGBA{R: shade / 2, G: shade / 2, B: shade, A: 255})

	size := res.Height / 6
	if size < 1 {
		size = 1
	}
	marker := imaging.New(size, size, color.NRGBA{R: 255, G: 200, B: 0, A: 255})
	span := res.Width - size
	if span < 1 {
		span = 1
	}
	x := (n * size) % span
	y := (res.Height - size) / 2
	return imaging.Paste(frame, marker, image.Pt(x, y))
}
