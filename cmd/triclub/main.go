// Package main запускает HTTP-сервер клубного сервиса баллов.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/triclub-points/internal/config"
	"github.com/mmeshcher/triclub-points/internal/handler"
	"github.com/mmeshcher/triclub-points/internal/logger"
	"github.com/mmeshcher/triclub-points/internal/middleware"
	"github.com/mmeshcher/triclub-points/internal/notify"
	"github.com/mmeshcher/triclub-points/internal/repository"
	"github.com/mmeshcher/triclub-points/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger initialization error: %v", err)
	}
	defer zl.Sync()

	sugar := zl.Sugar()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.NATSURL != "" {
		publisher, err = notify.NewNATSPublisher(cfg.NATSURL, zl.Named("nats"))
		if err != nil {
			sugar.Fatalw("nats initialization error", "error", err.Error())
		}
	}

	svc := service.NewService(repo, publisher, zl.Named("service"), service.Bonuses{
		Invite:  cfg.InviteBonus,
		Welcome: cfg.WelcomeBonus,
	})
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("service close error", "error", err)
		}
	}()

	if cfg.AdminLogin != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := svc.EnsureAdmin(ctx, cfg.AdminLogin, cfg.AdminPassword)
		cancel()
		if err != nil {
			sugar.Fatalw("admin bootstrap error", "error", err.Error())
		}
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, zl, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting triclub server", "addr", cfg.RunAddress, "nats", cfg.NATSURL != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Останавливаем сервер по сигналу или при падении ListenAndServe.
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
		os.Exit(1)
	}
}
