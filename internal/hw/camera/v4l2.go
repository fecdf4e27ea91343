package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// v4l2 drives a USB webcam through ffmpeg.
type v4l2 struct{}

// NewV4L2 acquires a V4L2 webcam (e.g. /dev/video0) captured with ffmpeg.
func NewV4L2(ctx context.Context, opts Options) (*Exec, error) {
	if opts.Device == "" {
		opts.Device = "/dev/video0"
	}
	return openExec(ctx, v4l2{}, opts)
}

func (v4l2) name() string { return "v4l2" }

func (v4l2) probe(ctx context.Context, opts Options) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return errors.New("ffmpeg not found, install with: sudo apt install -y ffmpeg v4l-utils")
	}
	fi, err := os.Stat(opts.Device)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return fmt.Errorf("%s is not a device node", opts.Device)
	}
	return nil
}

func (v4l2) streamArgs(res Resolution, opts Options) []string {
	return []string{
		"ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-input_format", "mjpeg",
		"-framerate", strconv.Itoa(opts.Framerate),
		"-video_size", res.String(),
		"-i", opts.Device,
		"-c:v", "copy",
		"-f", "mjpeg",
		"-",
	}
}

func (v4l2) stillArgs(res Resolution, opts Options) []string {
	return []string{
		"ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-video_size", res.String(),
		"-i", opts.Device,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-",
	}
}
