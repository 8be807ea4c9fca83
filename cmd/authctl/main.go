// Command authctl is a command line client of the authaudit REST API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Initialize context that cancelled on SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		cancel()
		os.Exit(1)
	}
}

// run loads config (defaults, then .env, then environment, then flags) and executes the command
// Errors are printed by cobra to errOut
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string, out io.Writer, errOut io.Writer) error {
	cfg := NewConfig()
	if err := cfg.LoadDotEnv(getwd); err != nil {
		_, _ = fmt.Fprintln(errOut, "Error: can't load .env:", err)
		return err
	}
	if err := cfg.LoadEnv(getenv); err != nil {
		_, _ = fmt.Fprintln(errOut, "Error:", err)
		return err
	}

	root := newRootCmd(&cli{cfg: cfg, out: out, errOut: errOut})
	root.SetArgs(args)

	return root.ExecuteContext(ctx)
}
