package camera

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func jpegBytes(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Render(Resolution{32, 18}, n), imaging.JPEG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFrameSplitter_SplitsConcatenatedJPEGs(t *testing.T) {
	f1, f2 := jpegBytes(t, 1), jpegBytes(t, 2)
	stream := append([]byte("garbage before"), f1...)
	stream = append(stream, f2...)

	s := newFrameSplitter(bytes.NewReader(stream))
	got1, err := s.Next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if !bytes.Equal(got1, f1) {
		t.Errorf("first frame: %d bytes, want %d", len(got1), len(f1))
	}
	got2, err := s.Next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if !bytes.Equal(got2, f2) {
		t.Errorf("second frame: %d bytes, want %d", len(got2), len(f2))
	}
	if _, err := imaging.Decode(bytes.NewReader(got2)); err != nil {
		t.Errorf("split frame should decode: %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("end of stream: err = %v, want io.EOF", err)
	}
}

func TestFrameSplitter_TruncatedFrame(t *testing.T) {
	f := jpegBytes(t, 1)
	s := newFrameSplitter(bytes.NewReader(f[:len(f)/2]))
	if _, err := s.Next(); err != io.ErrUnexpectedEOF {
		t.Errorf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestFrameSlot_AfterWaitsForNewerFrame(t *testing.T) {
	slot := newFrameSlot()
	slot.put([]byte("old"))
	seq := slot.current()

	go func() {
		time.Sleep(10 * time.Millisecond)
		slot.put([]byte("new"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, cur, err := slot.after(ctx, seq)
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if string(data) != "new" || cur != seq+1 {
		t.Errorf("got %q seq %d, want \"new\" seq %d", data, cur, seq+1)
	}
}

func TestFrameSlot_FailWakesWaiters(t *testing.T) {
	slot := newFrameSlot()
	go slot.fail(io.EOF)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := slot.after(ctx, 0)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want wrapped io.ErrUnexpectedEOF", err)
	}
}

func TestFrameSlot_ContextTimeout(t *testing.T) {
	slot := newFrameSlot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := slot.after(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}
