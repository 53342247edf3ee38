package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xpanvictor/voxgate/internal/observe"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/device"
	"github.com/xpanvictor/voxgate/pkg/io/registry"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoFormat        = errors.New("session has no negotiated audio format")
	ErrRateMismatch    = errors.New("clip sample rate differs from the session's")
)

// Pacer writes a clip back to a live session one frame per interval so the
// far end hears it at its original speed. Frames are cut at the size the
// session negotiated in its handshake.
type Pacer struct {
	registry registry.Registry
	cfg      Config
	metrics  *observe.Metrics
	logger   *Logger.Logger
}

type Config struct {
	// Interval is the wall-clock gap between two writes, slightly shorter
	// than one frame.
	Interval time.Duration
}

func NewPacer(reg registry.Registry, cfg Config, metrics *observe.Metrics, logger *Logger.Logger) *Pacer {
	if metrics == nil {
		metrics = observe.NewNopMetrics()
	}
	if logger == nil {
		logger = Logger.NewNop()
	}
	return &Pacer{
		registry: reg,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// SessionFormat returns the audio format sessionID negotiated.
func (p *Pacer) SessionFormat(sessionID string) (device.AudioFormat, error) {
	ep, ok := p.registry.Lookup(sessionID)
	if !ok {
		return device.AudioFormat{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	f := ep.AudioFormat()
	if !f.Known() {
		return device.AudioFormat{}, fmt.Errorf("%w: %s", ErrNoFormat, sessionID)
	}
	return f, nil
}

// CheckRate reports whether a clip recorded at rate can be played to
// sessionID.
func (p *Pacer) CheckRate(sessionID string, rate int) error {
	f, err := p.SessionFormat(sessionID)
	if err != nil {
		return err
	}
	if rate != f.SampleRate {
		return fmt.Errorf("%w: clip %d Hz, session %d Hz", ErrRateMismatch, rate, f.SampleRate)
	}
	return nil
}

// Play sends 16-bit mono clip, recorded at the session's own rate, to
// sessionID in frames of the session's size.
func (p *Pacer) Play(ctx context.Context, clip []byte, sessionID string) (int, error) {
	f, err := p.SessionFormat(sessionID)
	if err != nil {
		return 0, err
	}
	return p.PlayFrames(ctx, clip, sessionID, f.FrameSize)
}

// PlayRate is Play for a clip whose rate is known. It refuses clips whose
// rate differs from the session's.
func (p *Pacer) PlayRate(ctx context.Context, clip []byte, sessionID string, rate int) (int, error) {
	if err := p.CheckRate(sessionID, rate); err != nil {
		return 0, err
	}
	return p.Play(ctx, clip, sessionID)
}

// PlayFrames sends clip in frameSize slices, the last one possibly short.
// It returns how many slices were written. Playback stops early when ctx
// is cancelled or the session's connection closes.
func (p *Pacer) PlayFrames(ctx context.Context, clip []byte, sessionID string, frameSize int) (int, error) {
	if frameSize <= 0 {
		return 0, fmt.Errorf("playback: invalid frame size %d", frameSize)
	}
	if p.cfg.Interval <= 0 {
		return 0, fmt.Errorf("playback: invalid frame interval %v", p.cfg.Interval)
	}
	ep, ok := p.registry.Lookup(sessionID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	written := 0
	defer func() {
		p.metrics.PlaybackFrames.Add(context.Background(), int64(written))
	}()

	for off := 0; off < len(clip); off += frameSize {
		if written > 0 {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-ep.Done():
				return written, device.ErrEndpointClosed
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return 0, err
		}

		end := off + frameSize
		if end > len(clip) {
			end = len(clip)
		}
		if err := ep.SendAudioFrame(clip[off:end]); err != nil {
			return written, fmt.Errorf("playback: frame %d: %w", written, err)
		}
		written++
	}

	p.logger.Debugf("played %d frames to %s", written, sessionID)
	return written, nil
}
