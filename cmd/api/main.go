package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/xpanvictor/voxgate/internal/app"
	"github.com/xpanvictor/voxgate/internal/config"
	"github.com/xpanvictor/voxgate/internal/handlers"
	"github.com/xpanvictor/voxgate/internal/server"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"golang.org/x/sync/errgroup"
)

// This is the main entry point for the API server.
// Loads in all system components
// Exposes functionalities
func main() {
	// .env is optional
	_ = godotenv.Load()

	// fetch cfg
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// load global logger
	logger := Logger.BuildLogger(cfg.Debug, cfg.LogLevel)
	defer logger.Sync()
	logger.Infof("Logger initialized (env %s)", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// wire components
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to build application: %v", err)
	}
	defer a.Close()

	// compose router
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		handlers.ErrorHandlerMiddleware(logger),
		handlers.RequestLoggerMiddleware(logger),
		handlers.MetricsMiddleware(a.Metrics),
		handlers.CORSMiddleware(),
	)
	server.InitializeRoutes(router, a.GetServerDependencies())

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router.Handler(),
	}

	// the recorder outlives the signal so it can drain what closing
	// sessions flush into it
	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.RunRecorder(recCtx)
	})
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer stopRecorder()

		// 5 secs then cancel
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Shutdown err %v", err)
		}
		if err := a.CloseConnections(shutdownCtx); err != nil {
			logger.Warnf("connections still open at shutdown: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Server exited: %v", err)
	}
	logger.Info("Shutdown system")
}
