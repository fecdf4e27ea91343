package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/LotCam/internal/config"
	"github.com/cjeanneret/LotCam/internal/debug"
	"github.com/cjeanneret/LotCam/internal/hw/camera"
	"github.com/cjeanneret/LotCam/internal/hw/gpio"
	"github.com/cjeanneret/LotCam/internal/hw/led"
	"github.com/cjeanneret/LotCam/internal/logic/capture"
	"github.com/cjeanneret/LotCam/internal/metrics"
	"github.com/cjeanneret/LotCam/internal/watch"
	"github.com/cjeanneret/LotCam/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web monitor on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file (built-in defaults if missing)")
	interval := flag.Duration("interval", 0, "override the delay between periodic captures (e.g. 4s)")
	cameraType := flag.String("camera", "", "override camera type: rpicam, v4l2 or synthetic")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyOverrides(cfg, *interval, *cameraType); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Camera config", cfg.Camera)
	debug.PrintStruct("Time-lapse config", cfg.Timelapse)

	if err := run(ctx, cfg, webPort.port()); err != nil {
		cancel()
		log.Fatalf("%v", err)
	}
	debug.Section("Stopped")
}

// newGPIODriver is replaced in tests.
var newGPIODriver = gpio.NewDriver

// run owns the hardware: every resource it acquires is released before it
// returns, so main can exit on the error.
func run(ctx context.Context, cfg *config.Config, webPort int) error {
	// Status LED (optional)
	var statusLED *led.StatusLED
	if cfg.StatusLED.Pin > 0 {
		debug.Step(1, "Initializing GPIO driver")
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		gpioDriver, err := newGPIODriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return fmt.Errorf("init GPIO failed: %w", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
		if statusLED, err = led.New(gpioDriver, cfg.StatusLED.Pin); err != nil {
			return fmt.Errorf("init status LED failed: %w", err)
		}
	}

	// Initialize camera
	debug.Step(2, "Initializing camera")
	cam, err := newCameraFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init camera failed: %w", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Camera device", cfg.Camera.Device)

	w, h := cfg.Resolution()
	loop, err := capture.Open(ctx, cam, capture.Params{
		Resolution:     camera.Resolution{Width: w, Height: h},
		Warmup:         cfg.Warmup(),
		Interval:       cfg.Interval(),
		InitialPath:    cfg.Timelapse.InitialPath,
		UpdatePath:     cfg.Timelapse.UpdatePath,
		HistoryDir:     cfg.Timelapse.HistoryDir,
		CaptureTimeout: cfg.CaptureTimeout(),
		LED:            statusLED,
	})
	if err != nil {
		return fmt.Errorf("open camera failed: %w", err)
	}
	// Runs before the GPIO close above: the LED is switched off first.
	defer func() {
		if err := loop.Shutdown(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	m := metrics.New()
	loop.Observe(m)

	if webPort > 0 {
		debug.Step(3, "Starting web monitor")
		if err := startWeb(ctx, fmt.Sprintf(":%d", webPort), cfg, loop, m); err != nil {
			return fmt.Errorf("web monitor: %w", err)
		}
	}

	debug.Step(4, "Running time-lapse")
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	return nil
}

// startWeb wires the monitor to the capture loop and serves it in the
// background until ctx is cancelled.
func startWeb(ctx context.Context, addr string, cfg *config.Config, loop *capture.Loop, m *metrics.Metrics) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stderr, web.BroadcastWriter(broadcaster)))
	loop.Observe(web.CaptureObserver(broadcaster))
	if err := web.RegisterMetrics(m.Registry(), broadcaster); err != nil {
		return err
	}

	snapshots := map[string]string{
		string(capture.KindInitial): cfg.Timelapse.InitialPath,
		string(capture.KindUpdate):  cfg.Timelapse.UpdatePath,
	}
	watcher, err := watch.New(snapshots)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		watcher.Close()
	}()
	go web.AnnounceSnapshots(ctx, broadcaster, watcher.Events())

	handlers := web.NewHandlers(broadcaster, settingsFromConfig(cfg), snapshots, cfg.Web.MaxWidth, web.StaticFS())
	srv := web.NewServer(addr, handlers, m.Handler())
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
		}
	}()
	return nil
}

func settingsFromConfig(cfg *config.Config) web.Settings {
	return web.Settings{
		CameraType:  cfg.Camera.Type,
		WidthPx:     cfg.Camera.WidthPx,
		HeightPx:    cfg.Camera.HeightPx,
		WarmupMs:    cfg.Timelapse.WarmupMs,
		IntervalMs:  cfg.Timelapse.IntervalMs,
		InitialPath: cfg.Timelapse.InitialPath,
		UpdatePath:  cfg.Timelapse.UpdatePath,
		HistoryDir:  cfg.Timelapse.HistoryDir,
	}
}

// applyOverrides mutates cfg with CLI overrides and revalidates it.
// Zero values mean "use config".
func applyOverrides(cfg *config.Config, interval time.Duration, cameraType string) error {
	if interval < 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}
	if interval > 0 {
		if interval < time.Millisecond {
			return fmt.Errorf("interval must be at least 1ms, got %v", interval)
		}
		cfg.Timelapse.IntervalMs = int(interval / time.Millisecond)
	}
	if cameraType != "" {
		if cameraType != cfg.Camera.Type && cameraType == config.CameraV4L2 && cfg.Camera.Device == "0" {
			cfg.Camera.Device = "/dev/video0"
		}
		cfg.Camera.Type = cameraType
	}
	return cfg.Validate()
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

var errUnsupportedCamera = errors.New("unsupported camera type")

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(ctx context.Context, cfg *config.Config) (camera.Device, error) {
	opts := camera.Options{
		Device:    cfg.Camera.Device,
		Framerate: cfg.Camera.Framerate,
		Headless:  cfg.Camera.Headless,
	}
	switch cfg.Camera.Type {
	case config.CameraRPiCam:
		return camera.NewRPiCam(ctx, opts)
	case config.CameraV4L2:
		return camera.NewV4L2(ctx, opts)
	case config.CameraSynthetic:
		return camera.NewSynthetic(), nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedCamera, cfg.Camera.Type)
	}
}
