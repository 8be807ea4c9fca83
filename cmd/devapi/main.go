// Command devapi serves the in-memory authaudit API for local development.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx := context.Background()

	// Initialize context that cancelled on SIGTERM
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		slog.Warn("Interrupt signal")
		cancel()
	}()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("devapi stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

// run loads config (defaults, then .env, then environment, then flags) and serves until ctx is done
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()
	if err := c.LoadDotEnv(getwd); err != nil {
		return err
	}
	c.LoadEnv(getenv)
	if err := c.ParseFlags(args); err != nil {
		return err
	}

	srv, err := NewServerApp(c)
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
