package audioring

import (
	"fmt"

	"github.com/smallnest/ringbuffer"
)

type rb_impl struct {
	frameSize int
	maxFrames int
	frames    int
	rb        *ringbuffer.RingBuffer
}

// Append implements FrameStore.
func (r *rb_impl) Append(frame []byte) error {
	if len(frame) != r.frameSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), r.frameSize)
	}
	if r.frames >= r.maxFrames {
		return ErrFull
	}

	n, err := r.rb.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("audioring: short write %d/%d", n, len(frame))
	}
	r.frames++
	return nil
}

// Frames implements FrameStore.
func (r *rb_impl) Frames() int {
	return r.frames
}

// Len implements FrameStore.
func (r *rb_impl) Len() int {
	return r.rb.Length()
}

// Capacity implements FrameStore.
func (r *rb_impl) Capacity() int {
	return r.rb.Capacity()
}

// Full implements FrameStore.
func (r *rb_impl) Full() bool {
	return r.frames >= r.maxFrames
}

// Peek implements FrameStore.
func (r *rb_impl) Peek() []byte {
	if r.rb.IsEmpty() {
		return nil
	}
	return r.rb.Bytes(nil)
}

// Drain implements FrameStore.
func (r *rb_impl) Drain() []byte {
	defer r.Reset()
	if r.rb.IsEmpty() {
		return nil
	}

	data := make([]byte, r.rb.Length())
	n, err := r.rb.Read(data)
	if err != nil {
		return nil
	}
	return data[:n]
}

// Reset implements FrameStore.
func (r *rb_impl) Reset() {
	r.rb.Reset()
	r.frames = 0
}

// New allocates room for maxFrames frames of frameSize bytes.
func New(frameSize, maxFrames int) FrameStore {
	return &rb_impl{
		frameSize: frameSize,
		maxFrames: maxFrames,
		rb:        ringbuffer.New(frameSize * maxFrames).SetBlocking(false), // overflow is reported, never waited on
	}
}
