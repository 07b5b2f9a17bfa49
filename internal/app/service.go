// Package app composes the service: configuration, storage, matcher,
// senders, dispatch pool, broadcast mirror, and the HTTP API, with the
// process run loop and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alerthub/internal/broadcast"
	"alerthub/internal/clock"
	"alerthub/internal/config"
	"alerthub/internal/dispatch"
	"alerthub/internal/dsl"
	"alerthub/internal/httpapi"
	"alerthub/internal/lifecycle"
	"alerthub/internal/logging"
	"alerthub/internal/matcher"
	"alerthub/internal/notify"
	"alerthub/internal/store"
)

// Service composes runtime dependencies and process lifecycle.
// Params: loaded config and shared runtime components.
// Returns: runnable AlertHub service.
type Service struct {
	cfg         config.Config
	logger      *slog.Logger
	closeLog    func()
	store       store.Store
	pool        *dispatch.Pool
	broadcaster *broadcast.Broadcaster
	httpSrv     *http.Server
}

// NewService builds a service instance from a config file.
// Params: config path and clock implementation.
// Returns: initialized service or setup error.
func NewService(configPath string, clk clock.Clock) (*Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenPostgres(cfg.Database.DSN)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("open store: %w", err)
	}

	loc := cfg.Location()
	machine := lifecycle.New(st, clk, logger)
	m := matcher.New(st, clk, logger, cfg.Pipeline.CacheTTL(), loc)
	senders := notify.NewSet(cfg.Notify, cfg.HTTP.BaseURL, logger)
	runner := dsl.NewRunner(st, m, senders, logger, loc)
	pool := dispatch.New(runner, m, logger, cfg.Pipeline)

	broadcaster, err := broadcast.New(cfg.Broadcast, loc, logger)
	if err != nil {
		// The mirror is best effort; the service runs without it.
		logger.Error("broadcast mirror unavailable", "error", err)
		broadcaster = nil
	}

	jwtService := httpapi.NewJWTService(cfg.Auth.SecretKey, time.Duration(cfg.Auth.TokenExpiresHours)*time.Hour)
	api := httpapi.NewServer(st, machine, pool, broadcaster, jwtService, logger, loc)

	service := &Service{
		cfg:         cfg,
		logger:      logger,
		closeLog:    closeLog,
		store:       st,
		pool:        pool,
		broadcaster: broadcaster,
		httpSrv: &http.Server{
			Addr:         cfg.HTTP.Listen,
			Handler:      api.Router(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
	return service, nil
}

// Run starts the service and blocks until a shutdown signal.
// Params: root context.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order: stop accepting
// requests, drain the dispatch pool, then release the store.
func (s *Service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.pool.Stop(); err != nil {
		s.logger.Error("dispatch pool stop failed", "error", err.Error())
		markErr(err)
	}
	s.broadcaster.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	s.logger.Info("service stopped")
	s.closeLog()
	return firstErr
}
