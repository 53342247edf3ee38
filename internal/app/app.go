package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/voxgate/internal/config"
	"github.com/xpanvictor/voxgate/internal/database"
	"github.com/xpanvictor/voxgate/internal/domains/playback"
	"github.com/xpanvictor/voxgate/internal/domains/recording"
	"github.com/xpanvictor/voxgate/internal/domains/segmentation"
	"github.com/xpanvictor/voxgate/internal/events"
	"github.com/xpanvictor/voxgate/internal/handlers"
	wshandler "github.com/xpanvictor/voxgate/internal/handlers/websocket"
	"github.com/xpanvictor/voxgate/internal/observe"
	"github.com/xpanvictor/voxgate/internal/repository/clip"
	"github.com/xpanvictor/voxgate/internal/server"
	"github.com/xpanvictor/voxgate/internal/storage"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/registry"
	memoryregistry "github.com/xpanvictor/voxgate/pkg/io/registry/memoryRegistry"
	"github.com/xpanvictor/voxgate/pkg/io/stt/vad"
	"gorm.io/gorm"
)

// App represents the application with all its dependencies
type App struct {
	Config   *config.Settings
	Logger   *Logger.Logger
	DB       *gorm.DB
	RC       *redis.Client
	Registry registry.Registry
	Bus      *events.Bus
	Store    storage.BlobStorage
	ClipRepo clip.Repository
	Recorder *recording.Sink
	Pacer    *playback.Pacer
	Metrics  *observe.Metrics

	provider    *observe.Provider
	connections *wshandler.ConnectionManager
	ServerDeps  server.Dependencies
}

// NewApp creates a new application instance with all dependencies properly wired
func NewApp(ctx context.Context, cfg *config.Settings, logger *Logger.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.setupDependencies(ctx); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

// setupDependencies initializes all application dependencies
func (a *App) setupDependencies(ctx context.Context) error {
	// 1. metrics
	if err := a.setupMetrics(); err != nil {
		return err
	}

	// 2. shared registry and lifecycle bus
	a.Registry = memoryregistry.New()
	a.Bus = events.New()

	// 3. clip storage and the optional index
	if err := a.setupStorage(ctx); err != nil {
		return err
	}
	if err := a.setupClipIndex(); err != nil {
		return err
	}
	if err := a.setupRedis(); err != nil {
		return err
	}

	// 4. recording sink
	a.Recorder = recording.New(recording.Config{
		MinFrames: a.Config.MinClipFrames(),
		Prefix:    a.keyPrefix(),
		Workers:   a.Config.Recording.Workers,
		QueueSize: a.Config.Recording.QueueSize,
	}, a.Store, a.ClipRepo, a.Bus, a.Metrics, a.Logger.Named("recorder"))

	// 5. playback
	a.Pacer = playback.NewPacer(a.Registry, playback.Config{
		Interval: a.Config.PlaybackInterval(),
	}, a.Metrics, a.Logger.Named("pacer"))
	if a.Config.Playback.EchoClips {
		echo := playback.NewEcho(a.Pacer, a.Store, a.Logger.Named("echo"))
		if err := echo.Subscribe(a.Bus); err != nil {
			return fmt.Errorf("subscribe echo: %w", err)
		}
		a.Logger.Infof("echoing stored clips back to callers")
	}

	// 6. handlers
	return a.setupServer()
}

func (a *App) setupMetrics() error {
	if !a.Config.Metrics.Enabled {
		a.Metrics = observe.NewNopMetrics()
		return nil
	}
	provider, err := observe.InitProvider(observe.ProviderConfig{ServiceName: a.Config.Metrics.ServiceName})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	a.provider = provider
	a.Metrics = provider.Metrics
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.Config.Recording.Backend {
	case "minio":
		store, err := storage.NewMinioStorageFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("init minio storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure minio bucket: %w", err)
		}
		a.Store = store
	default:
		store, err := storage.NewFileStorage(a.Config.Recording.Path)
		if err != nil {
			return fmt.Errorf("init file storage: %w", err)
		}
		a.Store = store
	}
	a.Logger.Infof("storing clips with the %s backend", a.Store.Backend())
	return nil
}

// keyPrefix places minio objects under the recording path. The file
// backend is already rooted there.
func (a *App) keyPrefix() string {
	if a.Config.Recording.Backend != "minio" {
		return ""
	}
	p := strings.Trim(path.Clean(strings.ReplaceAll(a.Config.Recording.Path, "\\", "/")), "/.")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (a *App) setupClipIndex() error {
	db, err := database.InitDB(a.Config.DB, a.Config.Debug)
	if errors.Is(err, database.ErrNoDatabase) {
		a.Logger.Infof("no database configured, clips will not be indexed")
		return nil
	}
	if err != nil {
		return err
	}
	if err := database.MigrateDB(db); err != nil {
		return err
	}
	a.DB = db
	a.ClipRepo = clip.NewGormClipRepo(db)
	return nil
}

func (a *App) setupRedis() error {
	if !a.Config.Redis.Enabled() {
		return nil
	}
	rc, err := database.NewRedis(a.Config.Redis)
	if err != nil {
		return err
	}
	a.RC = rc
	notifier := recording.NewNotifier(rc, a.Config.Redis.Channel, a.Logger.Named("notifier"))
	if err := notifier.Subscribe(a.Bus); err != nil {
		return fmt.Errorf("subscribe notifier: %w", err)
	}
	a.Logger.Infof("announcing stored clips on redis channel %s", a.Config.Redis.Channel)
	return nil
}

func (a *App) setupServer() error {
	classifiers, err := vad.NewEnergyFactory(vad.Config{Mode: a.Config.Segmentation.VADMode}, a.Logger.Named("vad"))
	if err != nil {
		return err
	}

	a.connections = wshandler.NewConnectionManager(a.Config.Server.IdleTimeout, a.Logger.Named("connections"))
	ws := wshandler.NewWebSocketHandler(a.Logger.Named("socket"), segmentation.EngineConfig{
		DefaultSampleRate:  a.Config.Audio.SampleRate,
		RequireContentType: a.Config.Audio.RequireContentType,
		FrameDuration:      a.Config.Audio.FrameDuration(),
		MaxClipFrames:      a.Config.MaxClipFrames(),
		SilenceFrames:      a.Config.Segmentation.SilenceFrames,
		FlushOnClose:       a.Config.Segmentation.FlushOnClose,
		MaxViolations:      a.Config.Segmentation.MaxViolations,
	}, segmentation.Deps{
		Registry:    a.Registry,
		Sink:        a.Recorder,
		Classifiers: classifiers,
		Bus:         a.Bus,
		Metrics:     a.Metrics,
		Logger:      a.Logger.Named("session"),
	}, a.connections)

	call, err := handlers.NewCallHandler(handlers.CallConfig{
		Host:         a.Config.Server.PublicHost,
		EventURL:     a.Config.Server.EventURL(),
		SampleRate:   a.Config.Audio.SampleRate,
		TemplatePath: a.Config.Call.TemplatePath,
	}, a.Logger.Named("call"))
	if err != nil {
		return err
	}
	sessions := handlers.NewSessionHandler(a.Registry, a.Pacer, a.ClipRepo, a.Store, a.Logger.Named("sessions"))

	var metricsHandler http.Handler
	if a.provider != nil {
		metricsHandler = a.provider.Handler
	}
	a.ServerDeps = server.NewServerDependencies(a.Registry, ws, call, sessions, metricsHandler, a.Logger, a.Config)
	return nil
}

// GetServerDependencies returns the server dependencies
func (a *App) GetServerDependencies() server.Dependencies {
	return a.ServerDeps
}

// RunRecorder runs the recording workers until ctx is done.
func (a *App) RunRecorder(ctx context.Context) error {
	return a.Recorder.Run(ctx)
}

// CloseConnections drops every open socket and waits until their sessions
// have handed any buffered speech to the recorder.
func (a *App) CloseConnections(ctx context.Context) error {
	if a.connections == nil {
		return nil
	}
	return a.connections.Shutdown(ctx)
}

// Close releases everything NewApp opened. The recorder must already be
// drained.
func (a *App) Close() {
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.RC != nil {
		if err := a.RC.Close(); err != nil {
			a.Logger.Warnf("close redis: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if a.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.provider.Shutdown(ctx); err != nil {
			a.Logger.Warnf("shutdown metrics: %v", err)
		}
	}
}
