package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxgate/internal/domains/playback"
	"github.com/xpanvictor/voxgate/internal/repository/clip"
	"github.com/xpanvictor/voxgate/internal/storage"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/registry"
	"github.com/xpanvictor/voxgate/pkg/io/wav"
)

const (
	maxPlaybackBytes = 16 << 20
	playbackTimeout  = 10 * time.Minute
)

// SessionHandler exposes live sessions, their stored clips and playback.
type SessionHandler struct {
	registry registry.Registry
	pacer    *playback.Pacer
	clips    clip.Repository
	store    storage.BlobStorage
	logger   *Logger.Logger
}

// NewSessionHandler builds the handler. clips may be nil when no index is
// configured; the clip listing and clip playback then answer 404.
func NewSessionHandler(reg registry.Registry, pacer *playback.Pacer, clips clip.Repository, store storage.BlobStorage, logger *Logger.Logger) *SessionHandler {
	return &SessionHandler{
		registry: reg,
		pacer:    pacer,
		clips:    clips,
		store:    store,
		logger:   logger,
	}
}

func (h *SessionHandler) RegisterRoutes(router gin.IRouter) {
	sessions := router.Group("/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.GET("/:cli/clips", h.ListClips)
		sessions.POST("/:cli/playback", h.StartPlayback)
	}
}

// ListSessions returns the identifiers of all bound calls.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	ids := h.registry.IDs()
	c.JSON(http.StatusOK, SessionsResponse{Sessions: ids, Count: len(ids)})
}

// ListClips returns the stored clips for a call.
func (h *SessionHandler) ListClips(c *gin.Context) {
	if h.clips == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Clip index not configured"})
		return
	}
	cli := c.Param("cli")
	records, err := h.clips.ListBySession(c.Request.Context(), cli, queryInt(c, "limit", 0))
	if err != nil {
		h.logger.Errorf("list clips for %s: %v", cli, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	if records == nil {
		records = []clip.Record{}
	}
	c.JSON(http.StatusOK, ClipsResponse{Session: cli, Clips: records})
}

// StartPlayback plays raw PCM from the body, or a stored clip named by
// ?clip=<id>, to a live call. It answers as soon as playback is scheduled.
func (h *SessionHandler) StartPlayback(c *gin.Context) {
	cli := c.Param("cli")
	if _, err := h.pacer.SessionFormat(cli); err != nil {
		h.renderSessionError(c, cli, err)
		return
	}

	var (
		pcm  []byte
		rate int
		err  error
	)
	clipID := c.Query("clip")
	if clipID != "" {
		pcm, rate, err = h.loadClip(c.Request.Context(), clipID)
		if err != nil {
			h.renderClipError(c, clipID, err)
			return
		}
		if err := h.pacer.CheckRate(cli, rate); err != nil {
			h.renderSessionError(c, cli, err)
			return
		}
	} else {
		pcm, err = io.ReadAll(io.LimitReader(c.Request.Body, maxPlaybackBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read body", Details: err.Error()})
			return
		}
		if len(pcm) > maxPlaybackBytes {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Audio too large"})
			return
		}
		if len(pcm) == 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Empty audio body"})
			return
		}
	}

	go h.play(cli, pcm, rate)

	c.JSON(http.StatusAccepted, PlaybackResponse{
		Message: "Playback started",
		Session: cli,
		Bytes:   len(pcm),
		Clip:    clipID,
	})
}

func (h *SessionHandler) play(cli string, pcm []byte, rate int) {
	ctx, cancel := context.WithTimeout(context.Background(), playbackTimeout)
	defer cancel()

	var (
		n   int
		err error
	)
	if rate > 0 {
		n, err = h.pacer.PlayRate(ctx, pcm, cli, rate)
	} else {
		n, err = h.pacer.Play(ctx, pcm, cli)
	}
	if err != nil {
		h.logger.Warnf("playback to %s stopped after %d frames: %v", cli, n, err)
		return
	}
	h.logger.Infof("played %d frames to %s", n, cli)
}

func (h *SessionHandler) renderSessionError(c *gin.Context, cli string, err error) {
	switch {
	case errors.Is(err, playback.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Details: cli})
	case errors.Is(err, playback.ErrNoFormat):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Session has no audio format", Details: cli})
	case errors.Is(err, playback.ErrRateMismatch):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "Clip sample rate does not match the session", Details: err.Error()})
	default:
		h.logger.Errorf("playback to %s: %v", cli, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

var errNoIndex = errors.New("clip index not configured")

func (h *SessionHandler) loadClip(ctx context.Context, id string) ([]byte, int, error) {
	if h.clips == nil {
		return nil, 0, errNoIndex
	}
	rec, err := h.clips.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	data, err := h.store.Get(ctx, rec.Key)
	if err != nil {
		return nil, 0, err
	}
	pcm, f, err := wav.Decode(data)
	if err != nil {
		return nil, 0, err
	}
	return pcm, f.SampleRate, nil
}

func (h *SessionHandler) renderClipError(c *gin.Context, id string, err error) {
	switch {
	case errors.Is(err, errNoIndex):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Clip index not configured"})
	case errors.Is(err, clip.ErrClipNotFound), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Clip not found", Details: id})
	case errors.Is(err, wav.ErrNotWAV):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "Stored clip is not a WAV file", Details: id})
	default:
		h.logger.Errorf("load clip %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}
