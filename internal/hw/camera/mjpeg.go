package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

const maxFrameBytes = 32 << 20

var errFrameTooLarge = errors.New("mjpeg frame exceeds size limit")

// frameSplitter cuts a concatenated MJPEG byte stream (as written by
// rpicam-vid or ffmpeg on stdout) into individual JPEG images, using the
// SOI (FFD8) and EOI (FFD9) markers.
type frameSplitter struct {
	r *bufio.Reader
}

func newFrameSplitter(r io.Reader) *frameSplitter {
	return &frameSplitter{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next complete JPEG frame. Bytes before the first SOI
// marker are skipped.
func (s *frameSplitter) Next() ([]byte, error) {
	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	frame := []byte{0xFF, 0xD8}
	prev = 0
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frame = append(frame, b)
		if prev == 0xFF && b == 0xD9 {
			return frame, nil
		}
		if len(frame) > maxFrameBytes {
			return nil, errFrameTooLarge
		}
		prev = b
	}
}

// frameSlot holds the most recent frame of a stream (latest-frame-only,
// older frames are dropped) and lets readers wait for a newer one.
type frameSlot struct {
	mu   sync.Mutex
	data []byte
	seq  uint64
	err  error
	next chan struct{} // closed when seq changes or the stream ends
}

func newFrameSlot() *frameSlot {
	return &frameSlot{next: make(chan struct{})}
}

func (s *frameSlot) put(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = frame
	s.seq++
	close(s.next)
	s.next = make(chan struct{})
}

// fail marks the stream as ended; waiters return err.
func (s *frameSlot) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	s.err = fmt.Errorf("preview stream ended: %w", err)
	close(s.next)
	s.next = make(chan struct{})
}

// current returns the sequence number of the latest frame.
func (s *frameSlot) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// after blocks until a frame newer than seq is available.
func (s *frameSlot) after(ctx context.Context, seq uint64) ([]byte, uint64, error) {
	for {
		s.mu.Lock()
		if s.seq > seq {
			data, cur := s.data, s.seq
			s.mu.Unlock()
			return data, cur, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return nil, 0, err
		}
		ch := s.next
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
}
