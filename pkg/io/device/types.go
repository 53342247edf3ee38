package device

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Transport string

const (
	TransportWS Transport = "ws"
)

var ErrEndpointClosed = errors.New("endpoint closed")

// AudioFormat is the PCM layout a connection negotiated. The zero value
// means nothing was negotiated yet.
type AudioFormat struct {
	SampleRate int
	// FrameSize is the byte length of one frame.
	FrameSize int
}

func (f AudioFormat) Known() bool {
	return f.SampleRate > 0 && f.FrameSize > 0
}

type EndpointID uuid.UUID

func (id EndpointID) String() string {
	return uuid.UUID(id).String()
}

// Endpoint is the write side of one live connection. Writes may come from
// the session's read loop and from a playback goroutine at the same time,
// so implementations serialise them.
type Endpoint interface {
	// Identity
	ID() EndpointID
	Transport() Transport
	// outbound
	SendText(text string) error
	SendAudioFrame(frame []byte) error
	Touch()
	// format
	SetAudioFormat(f AudioFormat)
	AudioFormat() AudioFormat
	// lifecyle
	LastActive() time.Time
	IsAlive() bool
	// Done is closed once the endpoint is closed.
	Done() <-chan struct{}
	Close() error
}
