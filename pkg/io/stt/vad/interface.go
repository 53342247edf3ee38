package vad

import (
	"errors"
	"time"
)

var (
	ErrUnsupportedRate  = errors.New("vad: unsupported sample rate")
	ErrUnsupportedFrame = errors.New("vad: frame length must be 10, 20 or 30 ms of 16-bit pcm")
)

// Classifier decides whether one frame of 16-bit little-endian mono PCM
// contains speech. Implementations may keep state between frames, so each
// session gets its own instance.
type Classifier interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// Factory builds a fresh Classifier for a new session.
type Factory func() Classifier

// Config contains configuration for VAD
type Config struct {
	// Mode is the aggressiveness from 0 (least) to 3 (most). Higher modes
	// need more energy before a frame counts as speech.
	Mode int `json:"mode"`
}

// DefaultConfig matches the sensitivity used for telephone audio.
func DefaultConfig() Config {
	return Config{Mode: 1}
}

// SupportedRate reports whether rate can be classified.
func SupportedRate(rate int) bool {
	switch rate {
	case 8000, 16000, 32000, 48000:
		return true
	}
	return false
}

// validFrame checks the frame holds exactly 10, 20 or 30 ms of samples.
func validFrame(frame []byte, sampleRate int) error {
	if !SupportedRate(sampleRate) {
		return ErrUnsupportedRate
	}
	for _, d := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		if len(frame) == int(int64(sampleRate)*2*int64(d)/int64(time.Second)) {
			return nil
		}
	}
	return ErrUnsupportedFrame
}
