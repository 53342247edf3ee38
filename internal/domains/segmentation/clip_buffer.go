package segmentation

import (
	"time"

	audioring "github.com/xpanvictor/voxgate/pkg/io/stt/audioRing"
)

// ClipBuffer accumulates speech frames for one session and hands them to
// the Sink as a Clip. It never holds more than maxFrames frames: the frame
// that reaches the limit triggers a flush before Append returns.
type ClipBuffer struct {
	sessionID string
	format    Format
	maxFrames int
	store     audioring.FrameStore
	sink      Sink
	now       func() time.Time
}

func NewClipBuffer(sessionID string, format Format, maxFrames int, sink Sink) *ClipBuffer {
	return &ClipBuffer{
		sessionID: sessionID,
		format:    format,
		maxFrames: maxFrames,
		store:     audioring.New(format.FrameSize(), maxFrames),
		sink:      sink,
		now:       time.Now,
	}
}

// Append stores one frame. flushed reports whether the buffer reached its
// limit and was handed to the sink.
func (b *ClipBuffer) Append(frame []byte) (flushed bool, err error) {
	if err := b.store.Append(frame); err != nil {
		return false, err
	}
	if b.store.Full() {
		b.flush()
		return true, nil
	}
	return false, nil
}

// ForceFlush hands the current contents to the sink regardless of size and
// returns the number of frames flushed. An empty buffer yields a zero-frame
// clip.
func (b *ClipBuffer) ForceFlush() int {
	return b.flush()
}

// Discard drops the buffered frames without calling the sink.
func (b *ClipBuffer) Discard() int {
	n := b.store.Frames()
	b.store.Reset()
	return n
}

// Frames is the number of buffered frames.
func (b *ClipBuffer) Frames() int {
	return b.store.Frames()
}

// Len is the number of buffered bytes.
func (b *ClipBuffer) Len() int {
	return b.store.Len()
}

func (b *ClipBuffer) MaxFrames() int {
	return b.maxFrames
}

func (b *ClipBuffer) flush() int {
	frames := b.store.Frames()
	clip := Clip{
		SessionID: b.sessionID,
		Frames:    frames,
		Payload:   b.store.Drain(),
		Format:    b.format,
		CreatedAt: b.now(),
	}
	b.sink.Process(clip)
	return frames
}
