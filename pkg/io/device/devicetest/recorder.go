// Package devicetest provides an in-memory device.Endpoint for tests.
package devicetest

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxgate/pkg/io/device"
)

// Recorder captures everything written to it.
type Recorder struct {
	id uuid.UUID

	mu     sync.Mutex
	format device.AudioFormat
	texts  []string
	frames [][]byte
	// FailAfter makes SendAudioFrame fail once this many frames were
	// written. Zero disables it.
	FailAfter int
	// OnFrame, when set, runs after each recorded frame.
	OnFrame func(n int)

	done      chan struct{}
	closeOnce sync.Once
}

var _ device.Endpoint = (*Recorder)(nil)

// DefaultFormat is the format a new Recorder reports: 16 kHz, 20 ms frames.
var DefaultFormat = device.AudioFormat{SampleRate: 16000, FrameSize: 640}

func NewRecorder() *Recorder {
	return &Recorder{id: uuid.New(), format: DefaultFormat, done: make(chan struct{})}
}

func (r *Recorder) ID() device.EndpointID      { return device.EndpointID(r.id) }
func (r *Recorder) Transport() device.Transport { return device.TransportWS }
func (r *Recorder) Touch()                      {}
func (r *Recorder) LastActive() time.Time       { return time.Now() }
func (r *Recorder) Done() <-chan struct{}       { return r.done }

func (r *Recorder) SetAudioFormat(f device.AudioFormat) {
	r.mu.Lock()
	r.format = f
	r.mu.Unlock()
}

func (r *Recorder) AudioFormat() device.AudioFormat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

func (r *Recorder) IsAlive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Recorder) SendText(text string) error {
	if !r.IsAlive() {
		return device.ErrEndpointClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *Recorder) SendAudioFrame(frame []byte) error {
	if !r.IsAlive() {
		return device.ErrEndpointClosed
	}
	r.mu.Lock()
	if r.FailAfter > 0 && len(r.frames) >= r.FailAfter {
		r.mu.Unlock()
		return device.ErrEndpointClosed
	}
	r.frames = append(r.frames, append([]byte(nil), frame...))
	n := len(r.frames)
	hook := r.OnFrame
	r.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

func (r *Recorder) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

// Texts returns a copy of the text messages written so far.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// Frames returns a copy of the audio frames written so far.
func (r *Recorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames))
	copy(out, r.frames)
	return out
}
