package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/treegest/internal/api"
	"github.com/dgallion1/treegest/internal/browser"
	"github.com/dgallion1/treegest/internal/config"
	"github.com/dgallion1/treegest/internal/logging"
	"github.com/dgallion1/treegest/internal/pipeline"
	"github.com/dgallion1/treegest/internal/render"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize services.
	svc, err := render.NewService(render.Options{
		TokenLimit:    cfg.DefaultTokenLimit,
		StartingID:    cfg.DefaultStartingID,
		Detail:        cfg.Detail(),
		Estimator:     cfg.Estimator(),
		CacheSize:     cfg.CacheSize,
		MaxConcurrent: cfg.MaxConcurrentRender,
		PDFFallback:   cfg.PDFFallbackPdftotext,
		Logger:        log.Named("render"),
	})
	if err != nil {
		log.Error("render service", zap.Error(err))
		os.Exit(1)
	}
	capt := browser.NewCapturer(browser.Options{
		ControlURL: cfg.BrowserControlURL,
		Headless:   cfg.BrowserHeadless,
		Timeout:    cfg.CaptureTimeout,
		Logger:     log.Named("browser"),
	})

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(pipeline.Options{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, capt, svc, log.Named("pipeline"))
	orch.Start(context.Background())

	// Initialize HTTP server.
	srv := api.NewServer(svc, orch, log.Named("api"), cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		log.Error("listen", zap.Error(err))
		os.Exit(1)
	}
	log.Info("starting treegest",
		zap.String("port", cfg.Port),
		zap.String("detail", cfg.Detail().String()),
		zap.Int("token_limit", cfg.DefaultTokenLimit),
	)
	err = serve(ctx, httpServer, ln, log, func() {
		orch.Stop()
		capt.Close()
	})
	if err != nil {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("stopped")
}

// serve runs srv on ln until ctx is done, then shuts it down and runs
// cleanup. It returns only after cleanup has finished.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, log *zap.Logger, cleanup func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		cleanup()
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
