package segmentation

import "time"

// Clip is one utterance handed to a Sink. Payload is the concatenation of
// Frames frames in arrival order and belongs to the Sink after Process.
type Clip struct {
	SessionID string
	Frames    int
	Payload   []byte
	Format    Format
	CreatedAt time.Time
}

func (c Clip) Duration() time.Duration {
	return c.Format.Duration(c.Frames)
}

// Sink consumes flushed clips. Process is called synchronously from the
// session's read loop and must not block for long. A clip with zero frames
// is a no-op.
type Sink interface {
	Process(clip Clip)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(clip Clip)

func (f SinkFunc) Process(clip Clip) { f(clip) }
