package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxgate/pkg/io/device"
)

const defaultWriteWait = 5 * time.Second

type WSEndpoint struct {
	id     uuid.UUID
	client *websocket.Conn

	writeMu   sync.Mutex
	writeWait time.Duration

	mu         sync.RWMutex
	lastActive time.Time
	format     device.AudioFormat

	done      chan struct{}
	closeOnce sync.Once
}

var _ device.Endpoint = (*WSEndpoint)(nil)

// ID implements device.Endpoint.
func (w *WSEndpoint) ID() device.EndpointID {
	return device.EndpointID(w.id)
}

// Transport implements device.Endpoint.
func (w *WSEndpoint) Transport() device.Transport {
	return device.TransportWS
}

// Touch implements device.Endpoint.
func (w *WSEndpoint) Touch() {
	w.mu.Lock()
	w.lastActive = time.Now()
	w.mu.Unlock()
}

// LastActive implements device.Endpoint.
func (w *WSEndpoint) LastActive() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastActive
}

// SetAudioFormat implements device.Endpoint.
func (w *WSEndpoint) SetAudioFormat(f device.AudioFormat) {
	w.mu.Lock()
	w.format = f
	w.mu.Unlock()
}

// AudioFormat implements device.Endpoint.
func (w *WSEndpoint) AudioFormat() device.AudioFormat {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.format
}

// IsAlive implements device.Endpoint.
func (w *WSEndpoint) IsAlive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Done implements device.Endpoint.
func (w *WSEndpoint) Done() <-chan struct{} {
	return w.done
}

// SendAudioFrame implements device.Endpoint.
func (w *WSEndpoint) SendAudioFrame(frame []byte) error {
	return w.write(websocket.BinaryMessage, frame)
}

// SendText implements device.Endpoint.
func (w *WSEndpoint) SendText(text string) error {
	return w.write(websocket.TextMessage, []byte(text))
}

func (w *WSEndpoint) write(messageType int, data []byte) error {
	if !w.IsAlive() {
		return device.ErrEndpointClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.client.SetWriteDeadline(time.Now().Add(w.writeWait)); err != nil {
		return err
	}
	return w.client.WriteMessage(messageType, data)
}

// CloseWithReason sends a close frame before tearing the connection down.
func (w *WSEndpoint) CloseWithReason(code int, reason string) error {
	if w.IsAlive() {
		w.writeMu.Lock()
		_ = w.client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(w.writeWait))
		w.writeMu.Unlock()
	}
	return w.Close()
}

// Close implements device.Endpoint.
func (w *WSEndpoint) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.client.Close()
	})
	return err
}

func New(client *websocket.Conn) *WSEndpoint {
	return &WSEndpoint{
		id:         uuid.New(),
		client:     client,
		writeWait:  defaultWriteWait,
		lastActive: time.Now(),
		done:       make(chan struct{}),
	}
}
