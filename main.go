package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/higpup01-design/proofok/config"
	"github.com/higpup01-design/proofok/handler"
	"github.com/higpup01-design/proofok/pkg/logger"
	"github.com/higpup01-design/proofok/service"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config file")
	showVersion := pflag.BoolP("version", "v", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(handler.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"storage", cfg.Storage.Backend,
		"email_mode", cfg.Mail.Mode,
	)

	records, err := service.NewRecordStore(cfg.Storage.DataDir)
	if err != nil {
		slog.Error("failed to initialize record store", "error", err)
		os.Exit(1)
	}
	defer records.Close()

	files, err := newFileStore(cfg)
	if err != nil {
		slog.Error("failed to initialize file store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	if closer, ok := files.(io.Closer); ok {
		defer closer.Close()
	}

	notifier, err := service.NewNotifier(service.NewMailSender(&cfg.Mail), service.NotifierOptionsFromConfig(&cfg.Mail))
	if err != nil {
		slog.Error("failed to initialize notifier", "error", err)
		os.Exit(1)
	}
	defer notifier.Close()

	workflow := service.NewWorkflow(records, files, notifier, cfg.Server.BaseURL)
	proofHandler := handler.NewProofHandler(workflow, cfg.Storage.MaxUploadBytes())

	gin.SetMode(gin.ReleaseMode)
	router, err := handler.NewRouter(proofHandler, handler.RouterOptions{
		RateLimit:      cfg.RateLimit.Requests,
		RateWindow:     cfg.RateLimit.RateWindow(),
		TrustedProxies: cfg.Server.TrustedProxies,
	})
	if err != nil {
		slog.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port, "version", handler.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return
	}

	slog.Info("server exited gracefully")
}

// newFileStore picks the PDF storage backend named in the config
func newFileStore(cfg *config.Config) (service.FileStore, error) {
	if cfg.Storage.Backend != config.BackendMinio {
		store, err := service.NewLocalFileStore(cfg.Storage.UploadDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := service.NewMinioFileStore(&cfg.Minio)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
