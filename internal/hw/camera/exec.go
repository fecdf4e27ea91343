package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/LotCam/internal/debug"
	"github.com/disintegration/imaging"
)

// Options configures an external-tool camera.
type Options struct {
	Device    string // camera index (rpicam) or device node (v4l2)
	Framerate int    // preview stream framerate
	Headless  bool   // no preview window on the attached display
}

// backend builds the command lines for one family of capture tools.
// Both commands write JPEG data to stdout: a single image for the still
// command, a concatenated MJPEG stream for the stream command.
type backend interface {
	name() string
	probe(ctx context.Context, opts Options) error
	streamArgs(res Resolution, opts Options) []string
	stillArgs(res Resolution, opts Options) []string
}

// Exec is a Device driven by external capture tools.
//
// While the preview runs, a single streaming process owns the sensor and
// Capture takes the next frame of that stream, so the camera is never opened
// twice. Without preview, Capture runs a one-shot still command.
type Exec struct {
	b    backend
	opts Options

	mu     sync.Mutex
	res    Resolution
	stream *stream
	closed bool
}

type stream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	frames *frameSlot
	done   chan struct{}
}

func newExec(b backend, opts Options) *Exec {
	if opts.Framerate <= 0 {
		opts.Framerate = 10
	}
	return &Exec{
		b:    b,
		opts: opts,
		res:  Resolution{Width: 1280, Height: 720},
	}
}

// openExec probes the backend and returns the device, or ErrDeviceUnavailable.
func openExec(ctx context.Context, b backend, opts Options) (*Exec, error) {
	debug.Info("Probing %s camera %q", b.name(), opts.Device)
	if err := b.probe(ctx, opts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, b.name(), err)
	}
	return newExec(b, opts), nil
}

func (e *Exec) SetResolution(res Resolution) error {
	if err := res.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.stream != nil {
		return ErrPreviewRunning
	}
	e.res = res
	debug.Verbose("Camera: resolution set to %s", res)
	return nil
}

func (e *Exec) StartPreview() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.stream != nil {
		return nil
	}

	args := e.b.streamArgs(e.res, e.opts)
	debug.Verbose("Camera: starting preview: %s", strings.Join(args, " "))

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	// Let the tool release the sensor cleanly before it gets killed.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 3 * time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("preview stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("starting %s: %w", args[0], err)
	}

	s := &stream{
		cmd:    cmd,
		cancel: cancel,
		frames: newFrameSlot(),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		split := newFrameSplitter(stdout)
		for {
			frame, err := split.Next()
			if err != nil {
				s.frames.fail(err)
				break
			}
			debug.Trace("Camera: stream frame %d bytes", len(frame))
			s.frames.put(frame)
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			debug.Error(fmt.Errorf("%s exited: %v: %s", args[0], err, strings.TrimSpace(stderr.String())))
		}
	}()

	e.stream = s
	return nil
}

func (e *Exec) StopPreview() error {
	e.mu.Lock()
	s := e.stream
	e.stream = nil
	e.mu.Unlock()
	if s == nil {
		return nil
	}

	debug.Verbose("Camera: stopping preview")
	s.cancel()
	<-s.done
	return nil
}

func (e *Exec) Capture(ctx context.Context, path string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	s, res := e.stream, e.res
	e.mu.Unlock()

	var (
		img image.Image
		err error
	)
	if s != nil {
		img, err = e.frameFromStream(ctx, s)
	} else {
		img, err = e.frameFromStill(ctx, res)
	}
	if err != nil {
		return err
	}
	return WriteBMP(path, img, res)
}

// frameFromStream waits for the first frame produced after the call and
// decodes it. A frame that fails to decode is skipped for the next one.
func (e *Exec) frameFromStream(ctx context.Context, s *stream) (image.Image, error) {
	seq := s.frames.current()
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		data, cur, err := s.frames.after(ctx, seq)
		if err != nil {
			return nil, err
		}
		img, err := imaging.Decode(bytes.NewReader(data))
		if err == nil {
			return img, nil
		}
		debug.Verbose("Camera: skipping undecodable frame %d: %v", cur, err)
		lastErr = err
		seq = cur
	}
	return nil, fmt.Errorf("decode preview frame: %w", lastErr)
}

func (e *Exec) frameFromStill(ctx context.Context, res Resolution) (image.Image, error) {
	args := e.b.stillArgs(res, e.opts)
	debug.Verbose("Camera: still capture: %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", args[0], err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode still from %s: %w", args[0], err)
	}
	return img, nil
}

func (e *Exec) Close() error {
	err := e.StopPreview()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return err
}
