package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"floodwatch/internal/util"
	"floodwatch/services/api/internal/bootstrap"
	"floodwatch/services/api/internal/config"
	"floodwatch/services/api/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to init runtime: %v", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("close runtime", "err", err)
		}
	}()

	serverCfg, err := rt.ServerConfig()
	if err != nil {
		log.Fatalf("failed to configure server: %v", err)
	}
	httpServer, err := server.New(serverCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	if cfg.SchedulerOn() {
		sup, err := rt.Scheduler(time.Now())
		if err != nil {
			log.Fatalf("failed to build scheduler: %v", err)
		}
		if err := sup.Start(context.WithoutCancel(ctx)); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
		defer sup.Stop()
	} else {
		logger.Info("scheduler disabled")
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
}
