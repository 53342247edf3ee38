package segmentation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/xpanvictor/voxgate/internal/events"
	"github.com/xpanvictor/voxgate/internal/observe"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/device"
	"github.com/xpanvictor/voxgate/pkg/io/registry"
	"github.com/xpanvictor/voxgate/pkg/io/stt/vad"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Session states.
const (
	StateAwaitingHandshake = "awaiting_handshake"
	StateActive            = "active"
	StateClosed            = "closed"
)

const (
	eventBind  = "bind"
	eventClose = "close"
)

// Ack is sent back once a handshake is accepted.
const Ack = "ok"

var (
	ErrNotBound          = errors.New("audio before handshake")
	ErrFrameSize         = errors.New("payload is not a whole number of frames")
	ErrClassify          = errors.New("frame classification failed")
	ErrClosed            = errors.New("session closed")
	ErrTooManyViolations = errors.New("too many consecutive violations")
)

type EngineConfig struct {
	// DefaultSampleRate applies when the handshake has no content type.
	DefaultSampleRate  int
	RequireContentType bool
	FrameDuration      time.Duration
	MaxClipFrames      int
	SilenceFrames      int
	FlushOnClose       bool
	// MaxViolations closes the session after that many consecutive bad
	// messages. Zero disables the limit.
	MaxViolations int
}

type Deps struct {
	Registry    registry.Registry
	Sink        Sink
	Classifiers vad.Factory
	Bus         events.Publisher
	Metrics     *observe.Metrics
	Logger      *Logger.Logger
}

// Engine drives one connection from handshake to close. It is owned by the
// connection's read goroutine and is not safe for concurrent use.
type Engine struct {
	cfg      EngineConfig
	deps     Deps
	endpoint device.Endpoint
	machine  *fsm.FSM
	logger   *Logger.Logger

	id         string
	format     Format
	classifier vad.Classifier
	tracker    *SilenceTracker
	buffer     *ClipBuffer
	violations int
}

func NewEngine(ep device.Endpoint, cfg EngineConfig, deps Deps) *Engine {
	if deps.Bus == nil {
		deps.Bus = events.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.NewNopMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = Logger.NewNop()
	}

	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		endpoint: ep,
		logger:   deps.Logger.With("endpoint", ep.ID().String()),
		tracker:  NewSilenceTracker(cfg.SilenceFrames),
	}
	e.machine = fsm.NewFSM(
		StateAwaitingHandshake,
		fsm.Events{
			{Name: eventBind, Src: []string{StateAwaitingHandshake}, Dst: StateActive},
			{Name: eventClose, Src: []string{StateAwaitingHandshake, StateActive}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_" + StateActive: func(ctx context.Context, _ *fsm.Event) {
				e.deps.Metrics.ActiveSessions.Add(ctx, 1)
			},
			"leave_" + StateActive: func(ctx context.Context, _ *fsm.Event) {
				e.deps.Metrics.ActiveSessions.Add(ctx, -1)
			},
		},
	)
	return e
}

// ID is the bound call identifier, empty before the handshake.
func (e *Engine) ID() string { return e.id }

func (e *Engine) State() string { return e.machine.Current() }

func (e *Engine) Format() Format { return e.format }

// BufferedFrames is the number of speech frames waiting for a flush.
func (e *Engine) BufferedFrames() int {
	if e.buffer == nil {
		return 0
	}
	return e.buffer.Frames()
}

// HandleControl processes a text message. In the awaiting state it must be
// a valid handshake; an error means the caller should drop the connection.
func (e *Engine) HandleControl(ctx context.Context, msg []byte) error {
	switch e.machine.Current() {
	case StateClosed:
		return ErrClosed
	case StateActive:
		e.logger.Debugf("ignoring control message on bound session %s: %s", e.id, msg)
		return nil
	}

	hs, err := ParseHandshake(msg)
	if err != nil {
		return err
	}
	rate, err := hs.ResolveSampleRate(e.cfg.DefaultSampleRate, e.cfg.RequireContentType)
	if err != nil {
		return err
	}
	if !vad.SupportedRate(rate) {
		return fmt.Errorf("%w: sample rate %d not supported", ErrHandshake, rate)
	}

	e.id = hs.CLI
	e.format = Format{SampleRate: rate, FrameDuration: e.cfg.FrameDuration}
	e.classifier = e.deps.Classifiers()
	e.buffer = NewClipBuffer(e.id, e.format, e.cfg.MaxClipFrames, e.deps.Sink)
	e.logger = e.logger.With("cli", e.id)
	e.endpoint.SetAudioFormat(device.AudioFormat{SampleRate: rate, FrameSize: e.format.FrameSize()})

	if prev, replaced := e.deps.Registry.Register(e.id, e.endpoint); replaced {
		e.logger.Warnf("session %s superseded endpoint %s", e.id, prev.ID())
	}
	if err := e.endpoint.SendText(Ack); err != nil {
		e.logger.Warnf("failed to acknowledge handshake: %v", err)
	}
	if err := e.machine.Event(ctx, eventBind); err != nil {
		return fmt.Errorf("bind session: %w", err)
	}

	e.deps.Bus.Publish(events.TopicSessionBound, events.SessionEvent{
		SessionID:  e.id,
		EndpointID: e.endpoint.ID().String(),
		At:         time.Now(),
	})
	e.logger.Infof("session bound at %d Hz, %d byte frames", rate, e.format.FrameSize())
	return nil
}

// HandleAudio processes a binary message holding one or more frames. A
// frame that fails classification is dropped and the rest of the message
// is still processed; the last such error is returned. Returned errors
// other than ErrTooManyViolations are informational and the session
// carries on.
func (e *Engine) HandleAudio(ctx context.Context, payload []byte) error {
	switch e.machine.Current() {
	case StateClosed:
		return ErrClosed
	case StateAwaitingHandshake:
		return e.violation(ctx, "unbound", ErrNotBound)
	}

	size := e.format.FrameSize()
	if len(payload) == 0 || len(payload)%size != 0 {
		return e.violation(ctx, "frame_size",
			fmt.Errorf("%w: %d bytes, frame is %d", ErrFrameSize, len(payload), size))
	}

	var last error
	for off := 0; off < len(payload); off += size {
		if err := e.processFrame(ctx, payload[off:off+size]); err != nil {
			if errors.Is(err, ErrTooManyViolations) {
				return err
			}
			last = err
		}
	}
	return last
}

func (e *Engine) processFrame(ctx context.Context, frame []byte) error {
	speech, err := e.classifier.IsSpeech(frame, e.format.SampleRate)
	if err != nil {
		return e.violation(ctx, "classify", fmt.Errorf("%w: %v", ErrClassify, err))
	}
	e.violations = 0
	e.deps.Metrics.FramesReceived.Add(ctx, 1, metric.WithAttributes(attribute.Bool("speech", speech)))

	if e.tracker.Observe(speech) == Flush {
		n := e.buffer.ForceFlush()
		e.recordFlush(ctx, "silence", n)
		return nil
	}
	if !speech {
		return nil
	}

	flushed, err := e.buffer.Append(frame)
	if err != nil {
		return e.violation(ctx, "frame_size", err)
	}
	if flushed {
		e.recordFlush(ctx, "max_length", e.buffer.MaxFrames())
	}
	return nil
}

func (e *Engine) recordFlush(ctx context.Context, trigger string, frames int) {
	if frames == 0 {
		return
	}
	e.deps.Metrics.ClipsFlushed.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
	e.logger.Debugf("flushed %d frames (%s)", frames, trigger)
}

func (e *Engine) violation(ctx context.Context, reason string, err error) error {
	e.violations++
	e.deps.Metrics.FrameViolations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	e.logger.Warnf("dropping message (%d in a row): %v", e.violations, err)

	if e.cfg.MaxViolations > 0 && e.violations >= e.cfg.MaxViolations {
		return fmt.Errorf("%w: last: %w", ErrTooManyViolations, err)
	}
	return err
}

// Close ends the session. The registry entry is only removed while it still
// points at this session's endpoint. Buffered speech is flushed or dropped
// according to FlushOnClose. Calling Close again is a no-op.
func (e *Engine) Close(ctx context.Context) error {
	if e.machine.Is(StateClosed) {
		return nil
	}
	wasActive := e.machine.Is(StateActive)
	if err := e.machine.Event(ctx, eventClose); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if !wasActive {
		e.logger.Debugf("connection closed before handshake")
		return nil
	}

	if !e.deps.Registry.Remove(e.id, e.endpoint) {
		e.logger.Debugf("registry entry for %s already owned by another endpoint", e.id)
	}

	if e.cfg.FlushOnClose {
		n := e.buffer.ForceFlush()
		e.recordFlush(ctx, "close", n)
	} else if n := e.buffer.Discard(); n > 0 {
		e.logger.Infof("dropped %d buffered frames on close", n)
	}

	e.deps.Bus.Publish(events.TopicSessionClosed, events.SessionEvent{
		SessionID:  e.id,
		EndpointID: e.endpoint.ID().String(),
		At:         time.Now(),
	})
	e.logger.Infof("session closed")
	return nil
}
