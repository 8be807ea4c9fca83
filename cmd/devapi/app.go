package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/authaudit/internal/apitest"
	"github.com/nkiryanov/authaudit/internal/logger"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger
}

func NewServerApp(c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	srv, err := apitest.New(apitest.Config{
		SecretKey:            c.SecretKey,
		Debug:                c.Debug,
		InitialAdminEmail:    c.InitialAdminEmail,
		InitialAdminPassword: c.InitialAdminPassword,
		Logger:               logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating api. Err: %w", err)
	}

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    srv,
		Logger:     logger,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "address", s.ListenAddr, "base_path", apitest.BasePath)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
