package audioring

import "errors"

var (
	ErrFrameSize = errors.New("audioring: frame has wrong size")
	ErrFull      = errors.New("audioring: store is full")
)

// FrameStore accumulates fixed-size PCM frames in arrival order until they
// are drained as one contiguous payload.
type FrameStore interface {
	Append(frame []byte) error
	// Frames is the number of whole frames held.
	Frames() int
	// Len is the number of bytes held.
	Len() int
	Capacity() int
	Full() bool
	// Peek copies the held bytes without consuming them.
	Peek() []byte
	// Drain returns every held byte and empties the store. The returned
	// slice is never reused by the store.
	Drain() []byte
	Reset()
}
