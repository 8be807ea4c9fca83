package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authaudit/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvDevelopment
)

type Config struct {
	// Default logging level
	LogLevel string `validate:"oneof=debug info warn error"`

	// Address on which the API will be run
	ListenAddr string `validate:"required,hostname_port"`

	// Secret key
	// Access tokens are signed with HMAC, so this key is used for that purpose
	SecretKey string `validate:"required"`

	// Debug mode returns one-time codes in responses
	Debug bool

	// Admin created on start
	InitialAdminEmail    string `validate:"omitempty,email"`
	InitialAdminPassword string `validate:"required_with=InitialAdminEmail"`

	// Environment
	Environment string `validate:"oneof=dev prod"`
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
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
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	// Unparsable values keep the current one
	setBool := func(o *bool) func(value string) {
		return func(value string) {
			if b, err := strconv.ParseBool(value); err == nil {
				*o = b
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"SECRET_KEY":             setString(&c.SecretKey),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"DEBUG":                  setBool(&c.Debug),
		"INITIAL_ADMIN_EMAIL":    setString(&c.InitialAdminEmail),
		"INITIAL_ADMIN_PASSWORD": setString(&c.InitialAdminPassword),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("devapi", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Return one-time codes in responses")
	fs.StringVar(&c.InitialAdminEmail, "admin-email", c.InitialAdminEmail, "Email of the admin created on start")
	fs.StringVar(&c.InitialAdminPassword, "admin-password", c.InitialAdminPassword, "Password of the admin created on start")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
