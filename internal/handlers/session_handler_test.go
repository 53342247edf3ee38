package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxgate/internal/domains/playback"
	"github.com/xpanvictor/voxgate/internal/repository/clip"
	"github.com/xpanvictor/voxgate/internal/storage"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/device"
	"github.com/xpanvictor/voxgate/pkg/io/device/devicetest"
	"github.com/xpanvictor/voxgate/pkg/io/registry"
	memoryregistry "github.com/xpanvictor/voxgate/pkg/io/registry/memoryRegistry"
	"github.com/xpanvictor/voxgate/pkg/io/wav"
)

type memClips struct {
	records []clip.Record
}

func (m *memClips) Save(_ context.Context, r *clip.Record) error {
	m.records = append(m.records, *r)
	return nil
}

func (m *memClips) Get(_ context.Context, id string) (clip.Record, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return clip.Record{}, clip.ErrClipNotFound
}

func (m *memClips) ListBySession(_ context.Context, sessionID string, _ int) ([]clip.Record, error) {
	var out []clip.Record
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

type sessionFixture struct {
	router *gin.Engine
	reg    registry.Registry
	clips  *memClips
	store  *storage.FileStorage
}

func newSessionFixture(t *testing.T, withIndex bool) *sessionFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	f := &sessionFixture{reg: memoryregistry.New(), store: store}
	pacer := playback.NewPacer(f.reg, playback.Config{Interval: time.Millisecond}, nil, Logger.NewNop())

	var index clip.Repository
	if withIndex {
		f.clips = &memClips{}
		index = f.clips
	}
	h := NewSessionHandler(f.reg, pacer, index, store, Logger.NewNop())
	f.router = gin.New()
	h.RegisterRoutes(f.router)
	return f
}

func (f *sessionFixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewReader(body)))
	return w
}

func waitFrames(t *testing.T, ep *devicetest.Recorder, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		frames := ep.Frames()
		if len(frames) >= n {
			return frames
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d frames, want %d", len(frames), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListSessions(t *testing.T) {
	f := newSessionFixture(t, false)
	f.reg.Register("b", devicetest.NewRecorder())
	f.reg.Register("a", devicetest.NewRecorder())

	w := f.do(http.MethodGet, "/sessions", nil)
	var resp SessionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || resp.Sessions[0] != "a" || resp.Sessions[1] != "b" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListClips(t *testing.T) {
	f := newSessionFixture(t, true)
	f.clips.records = []clip.Record{
		{ID: "1", SessionID: "cli", Key: "rec-cli-1.wav", Frames: 15},
		{ID: "2", SessionID: "other", Key: "rec-other-1.wav", Frames: 12},
	}

	w := f.do(http.MethodGet, "/sessions/cli/clips", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ClipsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session != "cli" || len(resp.Clips) != 1 || resp.Clips[0].ID != "1" {
		t.Errorf("resp = %+v", resp)
	}

	w = f.do(http.MethodGet, "/sessions/nobody/clips", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"clips":[]`)) {
		t.Errorf("empty listing = %d %s", w.Code, w.Body)
	}
}

func TestListClipsWithoutIndex(t *testing.T) {
	f := newSessionFixture(t, false)
	if w := f.do(http.MethodGet, "/sessions/cli/clips", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPlaybackRawBody(t *testing.T) {
	f := newSessionFixture(t, false)
	ep := devicetest.NewRecorder()
	f.reg.Register("cli", ep)

	pcm := bytes.Repeat([]byte{1, 2}, 640)
	w := f.do(http.MethodPost, "/sessions/cli/playback", pcm)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	frames := waitFrames(t, ep, 2)
	if !bytes.Equal(bytes.Join(frames, nil), pcm) {
		t.Error("played audio differs from request body")
	}
}

func TestPlaybackStoredClip(t *testing.T) {
	f := newSessionFixture(t, true)
	ep := devicetest.NewRecorder()
	ep.SetAudioFormat(device.AudioFormat{SampleRate: 8000, FrameSize: 320})
	f.reg.Register("cli", ep)

	// 8 kHz clip on an 8 kHz session: 320-byte frames
	pcm := bytes.Repeat([]byte{9, 9}, 480)
	data := wav.Encode(pcm, wav.Mono16(8000))
	if err := f.store.Put(context.Background(), "rec-cli.wav", bytes.NewReader(data), storage.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f.clips.records = []clip.Record{{ID: "c1", SessionID: "cli", Key: "rec-cli.wav"}}

	w := f.do(http.MethodPost, "/sessions/cli/playback?clip=c1", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	frames := waitFrames(t, ep, 3)
	if len(frames[0]) != 320 {
		t.Errorf("frame size = %d, want 320", len(frames[0]))
	}
}

func TestPlaybackErrors(t *testing.T) {
	f := newSessionFixture(t, true)
	f.reg.Register("cli", devicetest.NewRecorder())
	unbound := devicetest.NewRecorder()
	unbound.SetAudioFormat(device.AudioFormat{})
	f.reg.Register("unbound", unbound)

	data := wav.Encode(bytes.Repeat([]byte{1, 1}, 320), wav.Mono16(8000))
	if err := f.store.Put(context.Background(), "rec-8k.wav", bytes.NewReader(data), storage.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f.clips.records = []clip.Record{{ID: "c8", SessionID: "other", Key: "rec-8k.wav"}}

	tests := []struct {
		name string
		path string
		body []byte
		want int
	}{
		{"unknown session", "/sessions/nobody/playback", []byte{1, 2}, http.StatusNotFound},
		{"empty body", "/sessions/cli/playback", nil, http.StatusBadRequest},
		{"unknown clip", "/sessions/cli/playback?clip=missing", nil, http.StatusNotFound},
		{"clip rate differs from session", "/sessions/cli/playback?clip=c8", nil, http.StatusUnprocessableEntity},
		{"session without format", "/sessions/unbound/playback", []byte{1, 2}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(http.MethodPost, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body)
			}
		})
	}
}
