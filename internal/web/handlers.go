package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/disintegration/imaging"
)

// Settings are the effective capture settings shown by GET /config.
type Settings struct {
	CameraType  string `json:"camera_type"`
	WidthPx     int    `json:"width_px"`
	HeightPx    int    `json:"height_px"`
	WarmupMs    int    `json:"warmup_ms"`
	IntervalMs  int    `json:"interval_ms"`
	InitialPath string `json:"initial_path"`
	UpdatePath  string `json:"update_path"`
	HistoryDir  string `json:"history_dir,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Settings    Settings
	Snapshots   map[string]string // snapshot name -> file path
	MaxWidth    int               // previews wider than this are scaled down
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, settings Settings, snapshots map[string]string, maxWidth int, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Settings:    settings,
		Snapshots:   snapshots,
		MaxWidth:    maxWidth,
		staticFS:    staticFS,
	}
}

// HandleConfig returns the effective capture settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Settings)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleSnapshot handles GET /snapshot/{name}: the named bitmap, converted
// to a JPEG preview no wider than MaxWidth.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path, ok := h.Snapshots[name]
	if !ok {
		http.Error(w, "unknown snapshot", http.StatusNotFound)
		return
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "snapshot not captured yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}

	img, err := imaging.Open(path)
	if err != nil {
		// Replacement is atomic, so this is a real decoding problem.
		http.Error(w, "snapshot unreadable", http.StatusInternalServerError)
		return
	}
	if h.MaxWidth > 0 && img.Bounds().Dx() > h.MaxWidth {
		img = imaging.Resize(img, h.MaxWidth, 0, imaging.Box)
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
