package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/LotCam/internal/debug"
	"github.com/cjeanneret/LotCam/internal/hw/camera"
	"github.com/cjeanneret/LotCam/internal/hw/led"
)

// PictureTaken is the line written to Params.Out after every periodic capture.
const PictureTaken = "Picture Taken"

// Kind identifies which snapshot a capture produced.
type Kind string

const (
	KindInitial Kind = "initial"
	KindUpdate  Kind = "update"
)

// Params configures a capture loop. Zero values fall back to the defaults
// of the parking-lot script: 1280x720, 4s warm-up, 4s interval,
// initial.bmp and update.bmp in the working directory.
type Params struct {
	Resolution     camera.Resolution
	Warmup         time.Duration // delay between preview start and the initial capture
	Interval       time.Duration // delay before each periodic capture
	InitialPath    string
	UpdatePath     string
	HistoryDir     string        // optional: timestamped copy of every update
	CaptureTimeout time.Duration // upper bound for one capture (default 10s)

	Out io.Writer        // receives one PictureTaken line per periodic capture (default os.Stdout)
	LED *led.StatusLED   // optional capture indicator
	Now func() time.Time // clock for history names (default time.Now)
}

func (p *Params) applyDefaults() {
	if p.Resolution == (camera.Resolution{}) {
		p.Resolution = camera.Resolution{Width: 1280, Height: 720}
	}
	if p.Warmup <= 0 {
		p.Warmup = 4 * time.Second
	}
	if p.Interval <= 0 {
		p.Interval = 4 * time.Second
	}
	if p.InitialPath == "" {
		p.InitialPath = "initial.bmp"
	}
	if p.UpdatePath == "" {
		p.UpdatePath = "update.bmp"
	}
	if p.CaptureTimeout <= 0 {
		p.CaptureTimeout = 10 * time.Second
	}
	if p.Out == nil {
		p.Out = os.Stdout
	}
	if p.Now == nil {
		p.Now = time.Now
	}
}

// Event reports one finished capture, successful or not.
type Event struct {
	Kind     Kind
	Path     string
	Seq      int // 0 for the initial capture, 1..N for updates
	At       time.Time
	Duration time.Duration
	Err      error
}

// Observer is notified after every capture. It runs on the loop goroutine
// and must return quickly.
type Observer interface {
	CaptureDone(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) CaptureDone(e Event) { f(e) }

// CaptureError is a capture fault: the device or the filesystem failed.
type CaptureError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s capture to %s: %v", e.Kind, e.Path, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Loop owns the camera for the lifetime of a time-lapse run:
// Open -> CaptureInitial -> RunForever -> Shutdown.
type Loop struct {
	dev       camera.Device
	p         Params
	observers []Observer
	updates   int

	shutdownOnce sync.Once
	shutdownErr  error
}

// Open acquires dev for the loop: it sets the resolution and starts the
// preview. On failure the device is closed and no snapshot is written.
func Open(ctx context.Context, dev camera.Device, p Params) (*Loop, error) {
	p.applyDefaults()
	if err := p.Resolution.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	debug.Section("Opening camera")
	debug.Value("Resolution", p.Resolution)
	if err := dev.SetResolution(p.Resolution); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("set resolution %s: %w", p.Resolution, err)
	}
	if err := dev.StartPreview(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("start preview: %w", err)
	}
	if p.HistoryDir != "" {
		if err := os.MkdirAll(p.HistoryDir, 0o755); err != nil {
			_ = dev.StopPreview()
			_ = dev.Close()
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	debug.Live("Preview started")

	return &Loop{dev: dev, p: p}, nil
}

// Observe registers o for every subsequent capture.
func (l *Loop) Observe(o Observer) {
	l.observers = append(l.observers, o)
}

// Params returns the effective parameters, defaults applied.
func (l *Loop) Params() Params {
	return l.p
}

// Updates returns the number of periodic captures written so far.
func (l *Loop) Updates() int {
	return l.updates
}

// CaptureInitial waits for the warm-up delay then writes the initial
// snapshot. It returns ctx.Err() if cancelled while waiting.
func (l *Loop) CaptureInitial(ctx context.Context) error {
	debug.Verbose("Waiting %v for the camera to settle", l.p.Warmup)
	if err := sleep(ctx, l.p.Warmup); err != nil {
		return err
	}
	return l.capture(ctx, KindInitial, l.p.InitialPath, 0)
}

// RunForever captures the update snapshot every interval until ctx is
// cancelled, printing one PictureTaken line per capture. Cancellation is
// only observed between captures. It returns nil when cancelled and a
// *CaptureError when a capture fails.
func (l *Loop) RunForever(ctx context.Context) error {
	debug.Section("Time-lapse running")
	for {
		if err := sleep(ctx, l.p.Interval); err != nil {
			debug.Live("Interrupted after %d updates", l.updates)
			return nil
		}
		if err := l.capture(ctx, KindUpdate, l.p.UpdatePath, l.updates+1); err != nil {
			return err
		}
		l.updates++
		fmt.Fprintln(l.p.Out, PictureTaken)

		if l.p.HistoryDir != "" {
			if err := l.archive(l.updates); err != nil {
				debug.Error(err)
			}
		}
	}
}

// Run performs the initial capture then loops until ctx is cancelled.
// An interrupt is not an error.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.CaptureInitial(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	}
	return l.RunForever(ctx)
}

// Shutdown stops the preview and releases the device. Only the first call
// has an effect.
func (l *Loop) Shutdown() error {
	l.shutdownOnce.Do(func() {
		debug.Live("Stopping preview")
		err := l.dev.StopPreview()
		if cerr := l.dev.Close(); err == nil {
			err = cerr
		}
		if lerr := l.p.LED.Off(); err == nil {
			err = lerr
		}
		l.shutdownErr = err
	})
	return l.shutdownErr
}

// capture writes one frame. The device call gets a context detached from
// ctx: an interrupt never aborts a capture halfway.
func (l *Loop) capture(ctx context.Context, kind Kind, path string, seq int) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.p.CaptureTimeout)
	defer cancel()

	start := time.Now()
	err := l.p.LED.During(func() error {
		return l.dev.Capture(cctx, path)
	})
	evt := Event{Kind: kind, Path: path, Seq: seq, At: l.p.Now(), Duration: time.Since(start)}
	if err != nil {
		evt.Err = &CaptureError{Kind: kind, Path: path, Err: err}
		l.notify(evt)
		return evt.Err
	}
	debug.Shot(string(kind), path, seq)
	l.notify(evt)
	return nil
}

func (l *Loop) notify(e Event) {
	for _, o := range l.observers {
		o.CaptureDone(e)
	}
}

// historyTimeFormat keeps milliseconds: intervals may be shorter than a second.
const historyTimeFormat = "20060102T150405.000"

// archive copies the update snapshot to HistoryDir as
// <name>-<timestamp>-<seq><ext>. The sequence number keeps names unique
// even when two updates share a timestamp.
func (l *Loop) archive(seq int) error {
	base := filepath.Base(l.p.UpdatePath)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s-%s-%04d%s", strings.TrimSuffix(base, ext), l.p.Now().Format(historyTimeFormat), seq, ext)
	dst := filepath.Join(l.p.HistoryDir, name)

	if err := copyFile(l.p.UpdatePath, dst); err != nil {
		return fmt.Errorf("archive %s: %w", dst, err)
	}
	debug.Verbose("Archived %s", dst)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// sleep waits for d or until ctx is done, whichever comes first. A
// cancelled context always wins, even if the timer fired at the same time.
func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
