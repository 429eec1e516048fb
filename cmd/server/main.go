package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/photoposts/internal/acquirer"
	"github.com/blackmichael/photoposts/internal/config"
	"github.com/blackmichael/photoposts/internal/domain"
	"github.com/blackmichael/photoposts/internal/httpserver"
	"github.com/blackmichael/photoposts/internal/logging"
	"github.com/blackmichael/photoposts/internal/mediagroup"
	"github.com/blackmichael/photoposts/internal/photostore"
	"github.com/blackmichael/photoposts/internal/postgres"
	"github.com/blackmichael/photoposts/internal/sqlite"
	"github.com/blackmichael/photoposts/internal/telegram"
	"github.com/blackmichael/photoposts/internal/updates"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// repository is what both storage backends provide.
type repository interface {
	domain.PostRepository
	domain.CursorRepository
	Close() error
}

func openRepository(cfg *config.Config) (repository, error) {
	if cfg.UsePostgres() {
		return postgres.NewRepository(cfg.DatabaseURL)
	}
	return sqlite.NewRepository(cfg.DatabaseURL)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	// Set up repository (implements both PostRepository and CursorRepository)
	repo, err := openRepository(cfg)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()
	logger.Info("connected to database", "postgres", cfg.UsePostgres())

	photos, err := photostore.New(cfg.PhotoDir)
	if err != nil {
		return fmt.Errorf("create photo store: %w", err)
	}

	bot := telegram.NewClient(cfg.BotAPIURL, cfg.BotToken)
	ack := telegram.NewAcknowledger(bot, logger.With("component", "acknowledger"))

	acq := acquirer.New(bot, photos, cfg.AcquireConcurrency, logger.With("component", "acquirer"))
	postService := domain.NewPostService(repo, repo, acq, logger.With("component", "posts"))
	postService.SetBatchConcurrency(cfg.AcquireConcurrency)

	aggregator := mediagroup.New(acq, postService, ack, mediagroup.Config{
		Debounce: cfg.MediaGroupDebounce,
	}, logger.With("component", "mediagroup"))

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the update source in the background
	dispatcher := updates.NewDispatcher(aggregator, ack, logger.With("component", "dispatcher"))
	sourceDone := make(chan struct{})
	go func() {
		defer close(sourceDone)
		var err error
		switch cfg.UpdatesMode {
		case config.UpdatesModeStream:
			err = updates.NewSubscriber(cfg.UpdatesStreamURL, dispatcher, postService, logger.With("component", "relay")).Start(ctx)
		default:
			err = updates.NewPoller(bot, dispatcher, postService, logger.With("component", "poller")).Start(ctx)
		}
		if err != nil && ctx.Err() == nil {
			logger.Error("update source exited with error", "error", err)
		}
	}()

	go aggregator.Run(ctx, time.Minute)

	// Start the HTTP server
	server := httpserver.NewServer(cfg, postService, photos, logger.With("component", "http"))
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "updates_mode", cfg.UpdatesMode, "debounce", cfg.MediaGroupDebounce)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	<-sourceDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := aggregator.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down aggregator", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}

