package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// PublicHost is the host:port the telephony provider reaches us on.
	PublicHost string `mapstructure:"public_host"`
	// IdleTimeout closes sockets that send nothing for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EventURL is handed to the provider inside the call-control document.
func (s ServerConfig) EventURL() string {
	return fmt.Sprintf("http://%s/event", s.PublicHost)
}

type AudioConfig struct {
	// SampleRate is used when the handshake carries no content type.
	// Zero means the handshake must announce one.
	SampleRate         int  `mapstructure:"sample_rate"`
	FrameMs            int  `mapstructure:"frame_ms"`
	RequireContentType bool `mapstructure:"require_content_type"`
}

func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

type SegmentationConfig struct {
	MaxClipMs     int  `mapstructure:"max_clip_ms"`
	MinClipMs     int  `mapstructure:"min_clip_ms"`
	SilenceFrames int  `mapstructure:"silence_frames"`
	VADMode       int  `mapstructure:"vad_mode"`
	FlushOnClose  bool `mapstructure:"flush_on_close"`
	MaxViolations int  `mapstructure:"max_violations"`
}

type PlaybackConfig struct {
	// FrameInterval is the gap between two paced writes. Zero means 90% of
	// one frame.
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	EchoClips     bool          `mapstructure:"echo_clips"`
}

type RecordingConfig struct {
	// Backend is "file" or "minio".
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

type DBConfig struct {
	// Driver is "sqlite", "mysql" or "" to run without a clip index.
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	PoolSize int    `mapstructure:"pool_size"`
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Pass    string `mapstructure:"pass"`
	Channel string `mapstructure:"channel"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

type CallConfig struct {
	// TemplatePath overrides the built-in call-control template.
	TemplatePath string `mapstructure:"template_path"`
}

type Settings struct {
	Server       ServerConfig       `mapstructure:"server"`
	Audio        AudioConfig        `mapstructure:"audio"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
	Playback     PlaybackConfig     `mapstructure:"playback"`
	Recording    RecordingConfig    `mapstructure:"recording"`
	DB           DBConfig           `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Call         CallConfig         `mapstructure:"call"`
	Env          string             `mapstructure:"env"`
	Debug        bool               `mapstructure:"debug"`
	LogLevel     string             `mapstructure:"log_level"`
}

var (
	ErrInvalidAudio        = errors.New("invalid audio config")
	ErrInvalidSegmentation = errors.New("invalid segmentation config")
	ErrInvalidRecording    = errors.New("invalid recording config")
	ErrInvalidPlayback     = errors.New("invalid playback config")
)

// Load reads config_<ENV>.yaml from the working directory or /etc/voxgate,
// then applies environment overrides such as SEGMENTATION_SILENCE_FRAMES.
// A missing file is not an error; defaults and env cover everything.
func Load(paths ...string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config_" + genEnv())
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "/etc/voxgate"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.public_host", "localhost:8000")
	v.SetDefault("server.idle_timeout", 5*time.Minute)

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.frame_ms", 20)
	v.SetDefault("audio.require_content_type", false)

	v.SetDefault("segmentation.max_clip_ms", 10000)
	v.SetDefault("segmentation.min_clip_ms", 200)
	v.SetDefault("segmentation.silence_frames", 20)
	v.SetDefault("segmentation.vad_mode", 1)
	v.SetDefault("segmentation.flush_on_close", true)
	v.SetDefault("segmentation.max_violations", 50)

	v.SetDefault("playback.frame_interval", 0)
	v.SetDefault("playback.echo_clips", false)

	v.SetDefault("recording.backend", "file")
	v.SetDefault("recording.path", "./recordings/")
	v.SetDefault("recording.workers", 2)
	v.SetDefault("recording.queue_size", 64)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "voxgate.db")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.channel", "voxgate:clips")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.service_name", "voxgate")
}

// Validate rejects values the segmentation pipeline cannot run with.
func (s *Settings) Validate() error {
	switch s.Audio.FrameMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("%w: frame_ms must be 10, 20 or 30, got %d", ErrInvalidAudio, s.Audio.FrameMs)
	}
	if s.Audio.SampleRate < 0 {
		return fmt.Errorf("%w: negative sample_rate", ErrInvalidAudio)
	}

	seg := s.Segmentation
	if seg.SilenceFrames <= 0 {
		return fmt.Errorf("%w: silence_frames must be positive", ErrInvalidSegmentation)
	}
	if seg.MaxClipMs < s.Audio.FrameMs {
		return fmt.Errorf("%w: max_clip_ms shorter than one frame", ErrInvalidSegmentation)
	}
	if seg.MinClipMs < 0 || seg.MinClipMs > seg.MaxClipMs {
		return fmt.Errorf("%w: min_clip_ms out of range", ErrInvalidSegmentation)
	}
	if seg.VADMode < 0 || seg.VADMode > 3 {
		return fmt.Errorf("%w: vad_mode must be 0..3", ErrInvalidSegmentation)
	}

	// paced writes must keep up with real time without racing ahead of it
	frame := s.Audio.FrameDuration()
	if iv := s.Playback.FrameInterval; iv != 0 && (iv < frame/2 || iv >= frame) {
		return fmt.Errorf("%w: frame_interval %v must be shorter than one %v frame and at least half of it",
			ErrInvalidPlayback, iv, frame)
	}

	switch s.Recording.Backend {
	case "file", "minio":
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidRecording, s.Recording.Backend)
	}
	if s.Recording.Workers <= 0 || s.Recording.QueueSize <= 0 {
		return fmt.Errorf("%w: workers and queue_size must be positive", ErrInvalidRecording)
	}
	return nil
}

// PlaybackInterval is the paced write gap, derived from the frame
// duration when frame_interval is unset.
func (s *Settings) PlaybackInterval() time.Duration {
	if s.Playback.FrameInterval > 0 {
		return s.Playback.FrameInterval
	}
	return s.Audio.FrameDuration() * 9 / 10
}

// MaxClipFrames is the frame count at which a clip is force-flushed.
func (s *Settings) MaxClipFrames() int {
	return s.Segmentation.MaxClipMs / s.Audio.FrameMs
}

// MinClipFrames is the smallest clip the recorder keeps.
func (s *Settings) MinClipFrames() int {
	return s.Segmentation.MinClipMs / s.Audio.FrameMs
}

func genEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
