package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/LotCam/internal/hw/camera"
	"github.com/cjeanneret/LotCam/internal/logic/capture"
	"github.com/cjeanneret/LotCam/internal/watch"
)

// ---------- Handler helpers ----------

func newTestHandlers(t *testing.T) (*Handlers, string) {
	t.Helper()
	dir := t.TempDir()
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	h := NewHandlers(
		NewStatusBroadcaster(),
		Settings{
			CameraType:  "synthetic",
			WidthPx:     1280,
			HeightPx:    720,
			WarmupMs:    4000,
			IntervalMs:  4000,
			InitialPath: "initial.bmp",
			UpdatePath:  "update.bmp",
		},
		map[string]string{
			"initial": filepath.Join(dir, "initial.bmp"),
			"update":  filepath.Join(dir, "update.bmp"),
		},
		320,
		staticFS,
	)
	return h, dir
}

// ---------- HandleConfig ----------

func TestHandleConfig(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	h.HandleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var s Settings
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.WidthPx != 1280 || s.HeightPx != 720 {
		t.Errorf("resolution = %dx%d, want 1280x720", s.WidthPx, s.HeightPx)
	}
	if s.IntervalMs != 4000 {
		t.Errorf("IntervalMs = %d, want 4000", s.IntervalMs)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestEmbeddedIndex(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), Settings{}, nil, 0, StaticFS())
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "LotCam") {
		t.Errorf("embedded index: status %d", w.Code)
	}
}

// ---------- HandleSnapshot ----------

func TestHandleSnapshot(t *testing.T) {
	h, dir := newTestHandlers(t)
	res := camera.Resolution{Width: 1280, Height: 720}
	if err := camera.WriteBMP(filepath.Join(dir, "update.bmp"), camera.Render(res, 1), res); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewServer("", h, nil).Mux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/snapshot/update")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if sz := img.Bounds().Size(); sz.X != 320 || sz.Y != 180 {
		t.Errorf("preview size = %v, want 320x180", sz)
	}
}

func TestHandleSnapshot_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	srv := httptest.NewServer(NewServer("", h, nil).Mux())
	defer srv.Close()

	for _, path := range []string{"/snapshot/initial", "/snapshot/passwd"} {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, resp.StatusCode)
		}
	}
}

// ---------- Routes ----------

func TestMux_MetricsOptional(t *testing.T) {
	h, _ := newTestHandlers(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("lotcam_captures_total 1\n"))
	})

	for _, tc := range []struct {
		name    string
		handler http.Handler
		want    int
	}{
		{"with_metrics", metrics, http.StatusOK},
		{"without_metrics", nil, http.StatusNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewServer("", h, tc.handler).Mux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

// ---------- HandleStatusStream ----------

func TestHandleStatusStream_DeliversEvents(t *testing.T) {
	h, _ := newTestHandlers(t)
	srv := httptest.NewServer(NewServer("", h, nil).Mux())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/status/stream", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	// Wait for the connection comment so the subscription exists.
	if line, err := r.ReadString('\n'); err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, err = %v", line, err)
	}
	h.Broadcaster.BroadcastSnapshot("update")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt StatusEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Snapshot != "update" {
			t.Errorf("snapshot = %q, want update", evt.Snapshot)
		}
		return
	}
}

// ---------- Feed ----------

func TestCaptureObserver(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	obs := CaptureObserver(b)
	obs.CaptureDone(capture.Event{Kind: capture.KindUpdate, Seq: 7, Duration: 120 * time.Millisecond})
	obs.CaptureDone(capture.Event{Kind: capture.KindUpdate, Seq: 8, Err: errors.New("disk full")})

	var got []StatusEvent
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			var evt StatusEvent
			if err := json.Unmarshal([]byte(msg), &evt); err != nil {
				t.Fatal(err)
			}
			got = append(got, evt)
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
	if !strings.Contains(got[0].Msg, "Picture Taken (#7") || got[0].Level != "info" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Level != "error" || !strings.Contains(got[1].Msg, "disk full") {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestAnnounceSnapshots(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	events := make(chan watch.Event, 1)
	done := make(chan struct{})
	go func() {
		AnnounceSnapshots(context.Background(), b, events)
		close(done)
	}()

	events <- watch.Event{Name: "initial"}
	select {
	case msg := <-ch:
		if !strings.Contains(msg, `"snapshot":"initial"`) {
			t.Errorf("msg = %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AnnounceSnapshots should return when events close")
	}
}
