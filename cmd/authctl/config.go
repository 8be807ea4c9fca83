package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authaudit/internal/apiclient"
	"github.com/nkiryanov/authaudit/internal/logger"
)

const (
	defaultAPIURL       = apiclient.DefaultBaseURL
	defaultLoggingLevel = logger.LevelWarn
	defaultEnvironment  = logger.EnvDevelopment
	defaultTimeout      = apiclient.DefaultTimeout
)

type Config struct {
	// Base URL of the REST API, base path included
	APIURL string `validate:"required,http_url"`

	// Default logging level
	LogLevel string `validate:"oneof=debug info warn error"`

	// Environment, affects log format only
	Environment string `validate:"oneof=dev prod"`

	// Credentials commands that need a session sign in with
	Email    string `validate:"omitempty,email"`
	Password string

	// Applied to every API request
	Timeout time.Duration `validate:"gt=0"`
}

func NewConfig() *Config {
	return &Config{
		APIURL:      defaultAPIURL,
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		Timeout:     defaultTimeout,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", value, err)
			}
			*o = d
			return nil
		}
	}

	// VITE_API_URL comes first, so API_URL wins when both are set
	keys := []string{"VITE_API_URL", "API_URL", "LOG_LEVEL", "ENVIRONMENT", "AUTH_EMAIL", "AUTH_PASSWORD", "HTTP_TIMEOUT"}
	envMap := map[string]func(string) error{
		"VITE_API_URL":  setString(&c.APIURL),
		"API_URL":       setString(&c.APIURL),
		"LOG_LEVEL":     setString(&c.LogLevel),
		"ENVIRONMENT":   setString(&c.Environment),
		"AUTH_EMAIL":    setString(&c.Email),
		"AUTH_PASSWORD": setString(&c.Password),
		"HTTP_TIMEOUT":  setDuration(&c.Timeout),
	}

	for _, key := range keys {
		if err := envMap[key](getenv(key)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// BindFlags registers config flags on fs, current values are the flag defaults
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.APIURL, "api-url", "u", c.APIURL, "REST API base URL")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.Email, "email", c.Email, "Email to sign in with")
	fs.StringVar(&c.Password, "password", c.Password, "Password to sign in with")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "HTTP request timeout")
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
