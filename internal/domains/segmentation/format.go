package segmentation

import (
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"
)

const (
	BytesPerSample = 2
	Channels       = 1
)

var ErrContentType = errors.New("unsupported content type")

// Format describes 16-bit little-endian mono PCM framed at a fixed duration.
type Format struct {
	SampleRate    int
	FrameDuration time.Duration
}

// FrameSize is the byte length of one frame.
func (f Format) FrameSize() int {
	return int(int64(f.SampleRate) * BytesPerSample * Channels * int64(f.FrameDuration) / int64(time.Second))
}

// Duration is the playing time of n frames.
func (f Format) Duration(frames int) time.Duration {
	return time.Duration(frames) * f.FrameDuration
}

// FramesIn is how many whole frames fit in d.
func (f Format) FramesIn(d time.Duration) int {
	if f.FrameDuration <= 0 {
		return 0
	}
	return int(d / f.FrameDuration)
}

// ParseContentType extracts the sample rate from an "audio/l16;rate=N"
// content type.
func ParseContentType(ct string) (int, error) {
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrContentType, ct, err)
	}
	if !strings.EqualFold(mediaType, "audio/l16") {
		return 0, fmt.Errorf("%w: %q", ErrContentType, mediaType)
	}
	raw, ok := params["rate"]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no rate", ErrContentType, ct)
	}
	rate, err := strconv.Atoi(raw)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("%w: bad rate %q", ErrContentType, raw)
	}
	return rate, nil
}
