package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nkiryanov/authaudit/internal/api"
	"github.com/nkiryanov/authaudit/internal/apiclient"
	"github.com/nkiryanov/authaudit/internal/logger"
	"github.com/nkiryanov/authaudit/internal/service/auditexport"
	"github.com/nkiryanov/authaudit/internal/service/auth"
	"github.com/nkiryanov/authaudit/internal/session"
)

const sessionExpiredNotice = "session expired, sign in again"

var errNoCredentials = errors.New("email and password are required, set --email/--password or AUTH_EMAIL/AUTH_PASSWORD")

// App is one CLI session: every command invocation signs in anew, tokens never leave the process
type App struct {
	cfg    *Config
	out    io.Writer
	logger logger.Logger

	api  *api.API
	auth *auth.Store
}

func NewApp(c *Config, out io.Writer, errOut io.Writer) (*App, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Notice is printed once however many requests fail with the expired session
	var once sync.Once
	nav := apiclient.NewNavigator("/", func(string) {
		once.Do(func() {
			_, _ = fmt.Fprintln(errOut, sessionExpiredNotice)
		})
	})

	s := session.New()
	client, err := apiclient.New(apiclient.Config{
		BaseURL: c.APIURL,
		Timeout: c.Timeout,
	}, s, nav, l)
	if err != nil {
		return nil, fmt.Errorf("error while creating api client. Err: %w", err)
	}

	a := api.New(client)

	return &App{
		cfg:    c,
		out:    out,
		logger: l,
		api:    a,
		auth:   auth.NewStore(a.Auth, s, l),
	}, nil
}

// signIn starts the session with configured credentials
func (a *App) signIn(ctx context.Context) error {
	if a.cfg.Email == "" || a.cfg.Password == "" {
		return errNoCredentials
	}

	if err := a.auth.Login(ctx, a.cfg.Email, a.cfg.Password); err != nil {
		return err
	}
	if a.auth.User() == nil {
		return errors.New("signed in, but current user could not be loaded")
	}

	a.logger.Debug("signed in", "email", a.cfg.Email)
	return nil
}

func (a *App) exporter(workers int) *auditexport.Exporter {
	return auditexport.New(a.api.Admin, auditexport.Config{Workers: workers}, a.logger)
}

// print writes v as indented JSON
func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
