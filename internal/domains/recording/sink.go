package recording

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxgate/internal/domains/segmentation"
	"github.com/xpanvictor/voxgate/internal/events"
	"github.com/xpanvictor/voxgate/internal/observe"
	"github.com/xpanvictor/voxgate/internal/repository/clip"
	"github.com/xpanvictor/voxgate/internal/storage"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/wav"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Config struct {
	// MinFrames is the shortest clip worth keeping.
	MinFrames int
	// Prefix is prepended to every object key.
	Prefix       string
	Workers      int
	QueueSize    int
	StoreTimeout time.Duration
}

// Sink persists clips as WAV files. Process only validates and enqueues;
// encoding and storage happen on worker goroutines so the caller's read
// loop never waits on I/O.
type Sink struct {
	cfg     Config
	store   storage.BlobStorage
	index   clip.Repository
	bus     events.Publisher
	metrics *observe.Metrics
	logger  *Logger.Logger

	jobs chan segmentation.Clip

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

var _ segmentation.Sink = (*Sink)(nil)

// New builds a Sink. index may be nil to skip the clip index.
func New(cfg Config, store storage.BlobStorage, index clip.Repository, bus events.Publisher, metrics *observe.Metrics, logger *Logger.Logger) *Sink {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 30 * time.Second
	}
	if bus == nil {
		bus = events.Nop{}
	}
	if metrics == nil {
		metrics = observe.NewNopMetrics()
	}
	return &Sink{
		cfg:     cfg,
		store:   store,
		index:   index,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		jobs:    make(chan segmentation.Clip, cfg.QueueSize),
	}
}

// Process implements segmentation.Sink.
func (s *Sink) Process(c segmentation.Clip) {
	if c.Frames == 0 {
		return
	}
	ctx := context.Background()
	if c.Frames < s.cfg.MinFrames {
		s.logger.Infof("Discarding %d-frame clip from %s (minimum %d)", c.Frames, c.SessionID, s.cfg.MinFrames)
		s.discard(ctx, "too_short")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warnf("recorder closed, dropping %d-frame clip from %s", c.Frames, c.SessionID)
		s.discard(ctx, "closed")
		return
	}

	select {
	case s.jobs <- c:
	default:
		s.logger.Errorf("recording queue full, dropping %d-frame clip from %s", c.Frames, c.SessionID)
		s.discard(ctx, "queue_full")
	}
}

func (s *Sink) discard(ctx context.Context, reason string) {
	s.metrics.ClipsDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Start launches the workers. It is a no-op when already started.
func (s *Sink) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Run starts the workers and blocks until ctx is done, then drains.
func (s *Sink) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Close()
	return nil
}

// Close stops accepting clips and waits for queued ones to be stored.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	started := s.started
	s.mu.Unlock()

	if !started {
		// drain inline so nothing accepted is lost
		for c := range s.jobs {
			s.persist(c)
		}
		return
	}
	s.wg.Wait()
}

func (s *Sink) worker() {
	defer s.wg.Done()
	for c := range s.jobs {
		s.persist(c)
	}
}

func (s *Sink) persist(c segmentation.Clip) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	id := uuid.New()
	key := ClipKey(s.cfg.Prefix, c.SessionID, c.CreatedAt, id)
	data := wav.Encode(c.Payload, wav.Mono16(c.Format.SampleRate))
	backend := attribute.String("backend", s.store.Backend())

	err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		Size:        int64(len(data)),
		ContentType: "audio/wav",
	})
	if err != nil {
		s.logger.Errorf("failed to store clip %s: %v", key, err)
		s.metrics.ClipsStored.Add(ctx, 1, metric.WithAttributes(backend, attribute.String("status", "error")))
		return
	}

	rec := clip.Record{
		ID:         id.String(),
		SessionID:  c.SessionID,
		Key:        key,
		Frames:     c.Frames,
		DurationMs: c.Duration().Milliseconds(),
		SampleRate: c.Format.SampleRate,
		Bytes:      len(data),
		Backend:    s.store.Backend(),
		CreatedAt:  c.CreatedAt,
	}
	status := "ok"
	if s.index != nil {
		if err := s.index.Save(ctx, &rec); err != nil {
			s.logger.Errorf("clip %s stored but not indexed: %v", key, err)
			status = "index_error"
		}
	}

	s.metrics.ClipsStored.Add(ctx, 1, metric.WithAttributes(backend, attribute.String("status", status)))
	s.metrics.StoreDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.ClipDuration.Record(ctx, c.Duration().Seconds())

	s.bus.Publish(events.TopicClipStored, events.ClipStored{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		Key:        rec.Key,
		Frames:     rec.Frames,
		DurationMs: rec.DurationMs,
		SampleRate: rec.SampleRate,
		Bytes:      rec.Bytes,
		Backend:    rec.Backend,
		CreatedAt:  rec.CreatedAt,
	})
	s.logger.Infof("Saved %s (%d frames, %dms)", key, c.Frames, rec.DurationMs)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9+_-]`)

// ClipKey names a stored clip: rec-<cli>-<YYYYMMDDTHHMMSS>-<id prefix>.wav.
// The id suffix keeps two clips flushed in the same second apart.
func ClipKey(prefix, sessionID string, at time.Time, id uuid.UUID) string {
	cli := unsafeKeyChars.ReplaceAllString(sessionID, "_")
	return fmt.Sprintf("%srec-%s-%s-%s.wav", prefix, cli, at.Format("20060102T150405"), id.String()[:8])
}
