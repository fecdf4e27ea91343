package web

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/LotCam/internal/logic/capture"
	"github.com/cjeanneret/LotCam/internal/watch"
)

// CaptureObserver relays capture results to the status stream.
func CaptureObserver(b *StatusBroadcaster) capture.Observer {
	return capture.ObserverFunc(func(e capture.Event) {
		switch {
		case e.Err != nil:
			b.Broadcast("error", fmt.Sprintf("Capture failed: %v", e.Err))
		case e.Kind == capture.KindUpdate:
			b.Broadcast("info", fmt.Sprintf("%s (#%d, %v)", capture.PictureTaken, e.Seq, e.Duration.Round(time.Millisecond)))
		default:
			b.Broadcast("info", fmt.Sprintf("Initial snapshot written to %s", e.Path))
		}
	})
}

// AnnounceSnapshots forwards snapshot file changes to the status stream until
// ctx is done or the event channel closes.
func AnnounceSnapshots(ctx context.Context, b *StatusBroadcaster, events <-chan watch.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.BroadcastSnapshot(ev.Name)
		case <-ctx.Done():
			return
		}
	}
}
