package recording

import (
	"encoding/json"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/voxgate/internal/events"
	"github.com/xpanvictor/voxgate/pkg/Logger"
)

// Notifier republishes stored-clip events on a Redis channel as JSON so
// transcription or analytics workers can pick clips up.
type Notifier struct {
	client  *redis.Client
	channel string
	logger  *Logger.Logger
}

func NewNotifier(client *redis.Client, channel string, logger *Logger.Logger) *Notifier {
	return &Notifier{client: client, channel: channel, logger: logger}
}

// Subscribe attaches the notifier to the bus.
func (n *Notifier) Subscribe(bus *events.Bus) error {
	return bus.SubscribeAsync(events.TopicClipStored, n.OnClipStored, false)
}

func (n *Notifier) OnClipStored(ev events.ClipStored) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Errorf("encode clip event: %v", err)
		return
	}
	if err := n.client.Publish(n.channel, payload).Err(); err != nil {
		n.logger.Errorf("publish clip %s to %s: %v", ev.Key, n.channel, err)
		return
	}
	n.logger.Debugf("announced clip %s on %s", ev.Key, n.channel)
}
