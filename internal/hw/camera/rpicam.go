package camera

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Info describes a camera reported by the capture tools.
type Info struct {
	Index  int
	Sensor string
	Path   string
}

// rpicam drives the Raspberry Pi camera stack through the rpicam-* apps
// (named libcamera-* on Bullseye and earlier).
type rpicam struct {
	prefix string
}

// NewRPiCam acquires a Raspberry Pi camera module. It fails with
// ErrDeviceUnavailable when the tools are missing or the camera index
// given in opts.Device is not connected.
func NewRPiCam(ctx context.Context, opts Options) (*Exec, error) {
	if opts.Device == "" {
		opts.Device = "0"
	}
	return openExec(ctx, &rpicam{}, opts)
}

func (r *rpicam) name() string { return "rpicam" }

func (r *rpicam) probe(ctx context.Context, opts Options) error {
	for _, p := range []string{"rpicam", "libcamera"} {
		if _, err := exec.LookPath(p + "-still"); err == nil {
			r.prefix = p
			break
		}
	}
	if r.prefix == "" {
		return errors.New("rpicam-still not found, install with: sudo apt install -y rpicam-apps")
	}

	out, err := exec.CommandContext(ctx, r.prefix+"-hello", "--list-cameras").CombinedOutput()
	if err != nil {
		return fmt.Errorf("listing cameras: %v", err)
	}
	cams, err := parseCameraList(string(out))
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(opts.Device)
	if err != nil {
		return fmt.Errorf("camera device must be an index, got %q", opts.Device)
	}
	for _, c := range cams {
		if c.Index == idx {
			return nil
		}
	}
	return fmt.Errorf("camera %d not found (%d available)", idx, len(cams))
}

var cameraLine = regexp.MustCompile(`^(\d+)\s*:\s*(\S+)(?:.*\((.+)\))?`)

// parseCameraList parses `rpicam-hello --list-cameras` output, e.g.
//
//	0 : imx708 [4608x2592 10-bit RGGB] (/base/soc/i2c0mux/i2c@1/imx708@1a)
func parseCameraList(s string) ([]Info, error) {
	var cams []Info
	for _, line := range strings.Split(s, "\n") {
		m := cameraLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cams = append(cams, Info{Index: idx, Sensor: m[2], Path: m[3]})
	}
	if len(cams) == 0 {
		return nil, errors.New("no cameras available")
	}
	return cams, nil
}

func (r *rpicam) tool(suffix string) string {
	p := r.prefix
	if p == "" {
		p = "rpicam"
	}
	return p + "-" + suffix
}

func (r *rpicam) streamArgs(res Resolution, opts Options) []string {
	args := []string{
		r.tool("vid"),
		"-t", "0",
		"--camera", opts.Device,
		"--width", strconv.Itoa(res.Width),
		"--height", strconv.Itoa(res.Height),
		"--framerate", strconv.Itoa(opts.Framerate),
		"--codec", "mjpeg",
		"--flush",
		"-o", "-",
	}
	if opts.Headless {
		args = append(args, "-n")
	}
	return args
}

func (r *rpicam) stillArgs(res Resolution, opts Options) []string {
	return []string{
		r.tool("still"),
		"--camera", opts.Device,
		"--width", strconv.Itoa(res.Width),
		"--height", strconv.Itoa(res.Height),
		"-t", "1000",
		"-n",
		"-e", "jpg",
		"-o", "-",
	}
}
