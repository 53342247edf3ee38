package playback

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xpanvictor/voxgate/internal/domains/segmentation"
	"github.com/xpanvictor/voxgate/pkg/io/device"
	"github.com/xpanvictor/voxgate/pkg/io/device/devicetest"
	"github.com/xpanvictor/voxgate/pkg/io/registry"
	memoryregistry "github.com/xpanvictor/voxgate/pkg/io/registry/memoryRegistry"
	"github.com/xpanvictor/voxgate/pkg/io/stt/vad"
)

type quiet struct{}

func (quiet) IsSpeech([]byte, int) (bool, error) { return false, nil }

func newTestPacer(interval time.Duration) (*Pacer, registry.Registry) {
	reg := memoryregistry.New()
	return NewPacer(reg, Config{Interval: interval}, nil, nil), reg
}

func TestPlayWritesEachFrame(t *testing.T) {
	p, reg := newTestPacer(time.Millisecond)
	ep := devicetest.NewRecorder()
	other := devicetest.NewRecorder()
	reg.Register("cli", ep)
	reg.Register("other", other)

	clip := make([]byte, 3*640)
	for i := range clip {
		clip[i] = byte(i / 640)
	}

	n, err := p.Play(context.Background(), clip, "cli")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if n != 3 {
		t.Fatalf("wrote %d frames, want 3", n)
	}

	frames := ep.Frames()
	if len(frames) != 3 {
		t.Fatalf("endpoint got %d writes", len(frames))
	}
	for i, f := range frames {
		if !bytes.Equal(f, clip[i*640:(i+1)*640]) {
			t.Errorf("frame %d differs", i)
		}
	}
	if got := other.Frames(); len(got) != 0 {
		t.Errorf("other session got %d writes", len(got))
	}
}

func TestPlayShortTail(t *testing.T) {
	p, reg := newTestPacer(time.Millisecond)
	ep := devicetest.NewRecorder()
	reg.Register("cli", ep)

	n, err := p.Play(context.Background(), make([]byte, 640+100), "cli")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	frames := ep.Frames()
	if n != 2 || len(frames) != 2 || len(frames[1]) != 100 {
		t.Fatalf("n=%d, writes=%d", n, len(frames))
	}

	n, err = p.Play(context.Background(), nil, "cli")
	if err != nil || n != 0 {
		t.Errorf("empty clip = %d, %v", n, err)
	}
	if len(ep.Frames()) != 2 {
		t.Error("empty clip produced a write")
	}
}

func TestPlayUnknownSession(t *testing.T) {
	p, _ := newTestPacer(time.Millisecond)
	_, err := p.Play(context.Background(), make([]byte, 640), "ghost")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestPlayIsPaced(t *testing.T) {
	p, reg := newTestPacer(10 * time.Millisecond)
	reg.Register("cli", devicetest.NewRecorder())

	start := time.Now()
	if _, err := p.Play(context.Background(), make([]byte, 4*640), "cli"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	// first frame goes out at once, three more wait one tick each
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("4 frames took %v, want at least ~30ms", elapsed)
	}
}

func TestPlayCancelled(t *testing.T) {
	p, reg := newTestPacer(5 * time.Millisecond)
	ep := devicetest.NewRecorder()
	reg.Register("cli", ep)

	ctx, cancel := context.WithCancel(context.Background())
	ep.OnFrame = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	n, err := p.Play(ctx, make([]byte, 10*640), "cli")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n != 2 {
		t.Errorf("wrote %d frames before cancel, want 2", n)
	}
}

func TestPlayStopsWhenConnectionCloses(t *testing.T) {
	p, reg := newTestPacer(5 * time.Millisecond)
	ep := devicetest.NewRecorder()
	reg.Register("cli", ep)
	ep.OnFrame = func(n int) {
		if n == 1 {
			ep.Close()
		}
	}

	n, err := p.Play(context.Background(), make([]byte, 10*640), "cli")
	if !errors.Is(err, device.ErrEndpointClosed) {
		t.Fatalf("err = %v, want ErrEndpointClosed", err)
	}
	if n != 1 {
		t.Errorf("wrote %d frames, want 1", n)
	}
}

func TestPlayUsesNegotiatedFrameSize(t *testing.T) {
	p, reg := newTestPacer(time.Millisecond)
	ep := devicetest.NewRecorder()

	e := segmentation.NewEngine(ep, segmentation.EngineConfig{
		DefaultSampleRate: 16000,
		FrameDuration:     20 * time.Millisecond,
		MaxClipFrames:     500,
		SilenceFrames:     20,
	}, segmentation.Deps{
		Registry:    reg,
		Sink:        segmentation.SinkFunc(func(segmentation.Clip) {}),
		Classifiers: func() vad.Classifier { return quiet{} },
	})
	if err := e.HandleControl(context.Background(), []byte(`{"cli":"cli","content-type":"audio/l16;rate=8000"}`)); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	clip := make([]byte, 3*320)
	n, err := p.Play(context.Background(), clip, "cli")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if n != 3 {
		t.Fatalf("wrote %d frames, want 3", n)
	}
	for i, f := range ep.Frames() {
		if len(f) != 320 {
			t.Errorf("frame %d is %d bytes, want 320 (20ms at 8kHz)", i, len(f))
		}
	}
}

func TestPlayRateChecksSessionRate(t *testing.T) {
	p, reg := newTestPacer(time.Millisecond)
	ep := devicetest.NewRecorder()
	ep.SetAudioFormat(device.AudioFormat{SampleRate: 8000, FrameSize: 320})
	reg.Register("cli", ep)

	n, err := p.PlayRate(context.Background(), make([]byte, 640), "cli", 8000)
	if err != nil || n != 2 {
		t.Fatalf("PlayRate = %d, %v; want two 320-byte frames", n, err)
	}

	_, err = p.PlayRate(context.Background(), make([]byte, 640), "cli", 16000)
	if !errors.Is(err, ErrRateMismatch) {
		t.Errorf("16k clip to 8k session = %v, want ErrRateMismatch", err)
	}
	if len(ep.Frames()) != 2 {
		t.Error("mismatched clip was written")
	}
}

func TestPlayWithoutFormat(t *testing.T) {
	p, reg := newTestPacer(time.Millisecond)
	ep := devicetest.NewRecorder()
	ep.SetAudioFormat(device.AudioFormat{})
	reg.Register("cli", ep)

	if _, err := p.Play(context.Background(), make([]byte, 640), "cli"); !errors.Is(err, ErrNoFormat) {
		t.Errorf("err = %v, want ErrNoFormat", err)
	}
	if len(ep.Frames()) != 0 {
		t.Error("frames written without a format")
	}
}
