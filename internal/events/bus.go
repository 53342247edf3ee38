// Package events carries session and clip lifecycle notifications between
// components that should not import each other.
package events

import (
	"time"

	evbus "github.com/asaskevich/EventBus"
)

const (
	TopicSessionBound  = "session:bound"
	TopicSessionClosed = "session:closed"
	TopicClipStored    = "clip:stored"
)

// Publisher is the publish half of the bus.
type Publisher interface {
	Publish(topic string, args ...interface{})
}

type SessionEvent struct {
	SessionID  string
	EndpointID string
	At         time.Time
}

// ClipStored is published after a clip was written to blob storage.
type ClipStored struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Key        string    `json:"key"`
	Frames     int       `json:"frames"`
	DurationMs int64     `json:"duration_ms"`
	SampleRate int       `json:"sample_rate"`
	Bytes      int       `json:"bytes"`
	Backend    string    `json:"backend"`
	CreatedAt  time.Time `json:"created_at"`
}

type Bus struct {
	evbus.Bus
}

func New() *Bus {
	return &Bus{evbus.New()}
}

// Close waits for async subscribers to finish their current events.
func (b *Bus) Close() {
	b.WaitAsync()
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(string, ...interface{}) {}
