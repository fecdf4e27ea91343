package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported camera types.
const (
	CameraRPiCam    = "rpicam"    // Raspberry Pi camera module (rpicam-* tools)
	CameraV4L2      = "v4l2"      // USB webcam through ffmpeg
	CameraSynthetic = "synthetic" // generated frames, no hardware
)

// Built-in defaults: the parking-lot capture settings.
const (
	DefaultWidthPx          = 1280
	DefaultHeightPx         = 720
	DefaultFramerate        = 10
	DefaultCaptureTimeoutMs = 10000
	DefaultWarmupMs         = 4000
	DefaultIntervalMs       = 4000
	DefaultInitialPath      = "initial.bmp"
	DefaultUpdatePath       = "update.bmp"
	DefaultWebMaxWidth      = 640
)

// CameraConfig describes the capture device.
// Type selects a concrete implementation (e.g., "rpicam").
type CameraConfig struct {
	Type             string `yaml:"type"`               // rpicam, v4l2 or synthetic
	Device           string `yaml:"device"`             // camera index (rpicam) or /dev/videoN (v4l2)
	WidthPx          int    `yaml:"width_px"`           // capture width (default 1280)
	HeightPx         int    `yaml:"height_px"`          // capture height (default 720)
	Framerate        int    `yaml:"framerate"`          // preview stream framerate
	Headless         bool   `yaml:"headless"`           // no preview window on the attached display
	CaptureTimeoutMs int    `yaml:"capture_timeout_ms"` // upper bound for one capture
}

// TimelapseConfig holds the capture loop timing and snapshot paths.
type TimelapseConfig struct {
	WarmupMs    int    `yaml:"warmup_ms"`    // delay between preview start and the initial capture
	IntervalMs  int    `yaml:"interval_ms"`  // delay between periodic captures
	InitialPath string `yaml:"initial_path"` // snapshot taken once after warm-up
	UpdatePath  string `yaml:"update_path"`  // snapshot overwritten on every interval
	HistoryDir  string `yaml:"history_dir"`  // optional: keep timestamped copies of each update
}

// StatusLEDConfig is the optional capture indicator. Pin 0 = not used.
type StatusLEDConfig struct {
	Pin int `yaml:"pin"` // BCM numbering
}

// WebConfig configures the optional monitor.
type WebConfig struct {
	MaxWidth int `yaml:"max_width"` // width of the JPEG previews served by /snapshot
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Timelapse TimelapseConfig `yaml:"timelapse"`
	StatusLED StatusLEDConfig `yaml:"status_led"`
	Web       WebConfig       `yaml:"web"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file and returns the configuration.
// A missing file is not an error: the built-in defaults are returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Camera.Type == "" {
		c.Camera.Type = CameraRPiCam
	}
	if c.Camera.Device == "" {
		switch c.Camera.Type {
		case CameraV4L2:
			c.Camera.Device = "/dev/video0"
		default:
			c.Camera.Device = "0"
		}
	}
	if c.Camera.WidthPx == 0 {
		c.Camera.WidthPx = DefaultWidthPx
	}
	if c.Camera.HeightPx == 0 {
		c.Camera.HeightPx = DefaultHeightPx
	}
	if c.Camera.Framerate == 0 {
		c.Camera.Framerate = DefaultFramerate
	}
	if c.Camera.CaptureTimeoutMs <= 0 {
		c.Camera.CaptureTimeoutMs = DefaultCaptureTimeoutMs
	}
	if c.Timelapse.WarmupMs == 0 {
		c.Timelapse.WarmupMs = DefaultWarmupMs
	}
	if c.Timelapse.IntervalMs == 0 {
		c.Timelapse.IntervalMs = DefaultIntervalMs
	}
	if c.Timelapse.InitialPath == "" {
		c.Timelapse.InitialPath = DefaultInitialPath
	}
	if c.Timelapse.UpdatePath == "" {
		c.Timelapse.UpdatePath = DefaultUpdatePath
	}
	if c.Web.MaxWidth <= 0 {
		c.Web.MaxWidth = DefaultWebMaxWidth
	}
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch c.Camera.Type {
	case CameraRPiCam, CameraV4L2, CameraSynthetic:
	default:
		return fmt.Errorf("unsupported camera.type: %q", c.Camera.Type)
	}
	if c.Camera.WidthPx < 1 || c.Camera.WidthPx > 8192 {
		return fmt.Errorf("camera.width_px must be between 1 and 8192, got %d", c.Camera.WidthPx)
	}
	if c.Camera.HeightPx < 1 || c.Camera.HeightPx > 8192 {
		return fmt.Errorf("camera.height_px must be between 1 and 8192, got %d", c.Camera.HeightPx)
	}
	if c.Camera.Framerate < 1 || c.Camera.Framerate > 120 {
		return fmt.Errorf("camera.framerate must be between 1 and 120, got %d", c.Camera.Framerate)
	}
	if c.Timelapse.WarmupMs < 0 {
		return fmt.Errorf("timelapse.warmup_ms must be >= 0, got %d", c.Timelapse.WarmupMs)
	}
	if c.Timelapse.IntervalMs < 1 {
		return fmt.Errorf("timelapse.interval_ms must be > 0, got %d", c.Timelapse.IntervalMs)
	}
	if filepath.Clean(c.Timelapse.InitialPath) == filepath.Clean(c.Timelapse.UpdatePath) {
		return fmt.Errorf("timelapse.initial_path and update_path must differ, both are %q", c.Timelapse.InitialPath)
	}
	if c.StatusLED.Pin < 0 || c.StatusLED.Pin > 27 {
		return fmt.Errorf("status_led.pin must be a BCM pin between 0 and 27, got %d", c.StatusLED.Pin)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Resolution returns the capture size in pixels.
func (c *Config) Resolution() (width, height int) {
	return c.Camera.WidthPx, c.Camera.HeightPx
}

// Warmup returns the delay before the initial capture.
func (c *Config) Warmup() time.Duration {
	return time.Duration(c.Timelapse.WarmupMs) * time.Millisecond
}

// Interval returns the delay between periodic captures.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Timelapse.IntervalMs) * time.Millisecond
}

// CaptureTimeout returns the upper bound for a single capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Camera.CaptureTimeoutMs) * time.Millisecond
}
