package camera

import (
	"reflect"
	"testing"
)

func TestParseCameraList(t *testing.T) {
	const out = `Available cameras
-----------------
0 : imx708 [4608x2592 10-bit RGGB] (/base/soc/i2c0mux/i2c@1/imx708@1a)
    Modes: 'SRGGB10_CSI2P' : 1536x864 [120.13 fps - (768, 432)/3072x1728 crop]
                             2304x1296 [56.03 fps - (0, 0)/4608x2592 crop]

1 : imx219 [3280x2464 8-bit RGGB] (/base/soc/i2c0mux/i2c@0/imx219@10)
`
	cams, err := parseCameraList(out)
	if err != nil {
		t.Fatalf("parseCameraList: %v", err)
	}
	want := []Info{
		{Index: 0, Sensor: "imx708", Path: "/base/soc/i2c0mux/i2c@1/imx708@1a"},
		{Index: 1, Sensor: "imx219", Path: "/base/soc/i2c0mux/i2c@0/imx219@10"},
	}
	if !reflect.DeepEqual(cams, want) {
		t.Errorf("got %+v, want %+v", cams, want)
	}
}

func TestParseCameraList_None(t *testing.T) {
	if _, err := parseCameraList("No cameras available!\n"); err == nil {
		t.Error("expected error when no cameras are listed")
	}
}

func TestRPiCamArgs(t *testing.T) {
	r := &rpicam{prefix: "libcamera"}
	res := Resolution{1280, 720}

	stream := r.streamArgs(res, Options{Device: "0", Framerate: 10, Headless: true})
	wantStream := []string{
		"libcamera-vid", "-t", "0", "--camera", "0",
		"--width", "1280", "--height", "720", "--framerate", "10",
		"--codec", "mjpeg", "--flush", "-o", "-", "-n",
	}
	if !reflect.DeepEqual(stream, wantStream) {
		t.Errorf("stream args = %v", stream)
	}

	still := r.stillArgs(res, Options{Device: "1"})
	if still[0] != "libcamera-still" {
		t.Errorf("still tool = %q", still[0])
	}
	if !containsSeq(still, "--width", "1280") || !containsSeq(still, "--height", "720") || !containsSeq(still, "--camera", "1") {
		t.Errorf("still args missing resolution or camera: %v", still)
	}
}

func TestRPiCamArgs_DefaultPrefix(t *testing.T) {
	r := &rpicam{}
	if got := r.streamArgs(Resolution{1, 1}, Options{Device: "0", Framerate: 1})[0]; got != "rpicam-vid" {
		t.Errorf("tool = %q, want rpicam-vid", got)
	}
}

func TestV4L2Args(t *testing.T) {
	res := Resolution{1280, 720}
	opts := Options{Device: "/dev/video2", Framerate: 15}
	stream := v4l2{}.streamArgs(res, opts)
	if !containsSeq(stream, "-video_size", "1280x720") || !containsSeq(stream, "-i", "/dev/video2") || !containsSeq(stream, "-framerate", "15") {
		t.Errorf("stream args = %v", stream)
	}
	still := v4l2{}.stillArgs(res, opts)
	if !containsSeq(still, "-frames:v", "1") || still[len(still)-1] != "-" {
		t.Errorf("still args = %v", still)
	}
}

func containsSeq(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}
