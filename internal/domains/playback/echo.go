package playback

import (
	"context"
	"time"

	"github.com/xpanvictor/voxgate/internal/events"
	"github.com/xpanvictor/voxgate/internal/storage"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/wav"
)

// Echo plays every stored clip back to the caller it came from. It is a
// loopback for testing a telephony integration end to end.
type Echo struct {
	pacer   *Pacer
	store   storage.BlobStorage
	timeout time.Duration
	logger  *Logger.Logger
}

func NewEcho(pacer *Pacer, store storage.BlobStorage, logger *Logger.Logger) *Echo {
	return &Echo{pacer: pacer, store: store, timeout: 30 * time.Second, logger: logger}
}

// Subscribe attaches the echo to the bus.
func (e *Echo) Subscribe(bus *events.Bus) error {
	return bus.SubscribeAsync(events.TopicClipStored, e.OnClipStored, false)
}

// OnClipStored fetches the stored clip and plays it to its session.
func (e *Echo) OnClipStored(ev events.ClipStored) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	data, err := e.store.Get(ctx, ev.Key)
	if err != nil {
		e.logger.Errorf("echo: fetch %s: %v", ev.Key, err)
		return
	}
	pcm, f, err := wav.Decode(data)
	if err != nil {
		e.logger.Errorf("echo: decode %s: %v", ev.Key, err)
		return
	}

	n, err := e.pacer.PlayRate(ctx, pcm, ev.SessionID, f.SampleRate)
	if err != nil {
		e.logger.Warnf("echo to %s stopped after %d frames: %v", ev.SessionID, n, err)
		return
	}
	e.logger.Infof("echoed %d frames to %s", n, ev.SessionID)
}
