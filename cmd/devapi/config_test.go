package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("set default option", func(t *testing.T) {
		c := NewConfig()

		require.Equal(t, "localhost:8000", c.ListenAddr, "default listen address not set")
		require.Equal(t, "info", c.LogLevel, "default log level not set")
		require.Equal(t, "dev", c.Environment, "default environment not set")
		require.False(t, c.Debug, "debug should be off by default")
		require.Equal(t, "", c.SecretKey, "secret key should be empty by default")
		require.Error(t, c.Validate(), "secret key is required")
	})

	t.Run("load env", func(t *testing.T) {
		c := NewConfig()
		getenv := func(key string) string {
			switch key {
			case "RUN_ADDRESS":
				return "localhost:9000"
			case "LOG_LEVEL":
				return "debug"
			case "SECRET_KEY":
				return "secret"
			case "DEBUG":
				return "true"
			case "INITIAL_ADMIN_EMAIL":
				return "admin@example.com"
			case "INITIAL_ADMIN_PASSWORD":
				return "admin-password"
			default:
				return ""
			}
		}

		c.LoadEnv(getenv)

		require.Equal(t, "localhost:9000", c.ListenAddr)
		require.Equal(t, "debug", c.LogLevel)
		require.Equal(t, "secret", c.SecretKey)
		require.True(t, c.Debug)
		require.Equal(t, "admin@example.com", c.InitialAdminEmail)
		require.Equal(t, "admin-password", c.InitialAdminPassword)
		require.NoError(t, c.Validate())
	})

	t.Run("invalid debug keeps default", func(t *testing.T) {
		c := NewConfig()

		c.LoadEnv(func(key string) string {
			if key == "DEBUG" {
				return "maybe"
			}
			return ""
		})

		require.False(t, c.Debug)
	})

	t.Run("parse flags", func(t *testing.T) {
		t.Run("valid flags", func(t *testing.T) {
			tests := []struct {
				name  string
				flags []string
			}{
				{
					name: "short",
					flags: []string{
						"-a", "localhost:9000",
						"-l", "debug",
						"-s", "secret",
						"-e", "prod",
						"--debug",
					},
				},
				{
					name: "long",
					flags: []string{
						"--address", "localhost:9000",
						"--log-level", "debug",
						"--secret-key", "secret",
						"--environment", "prod",
						"--debug",
					},
				},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					c := NewConfig()

					err := c.ParseFlags(tt.flags)

					require.NoError(t, err, "correct flags must parsed without error")
					require.Equal(t, "localhost:9000", c.ListenAddr)
					require.Equal(t, "debug", c.LogLevel)
					require.Equal(t, "secret", c.SecretKey)
					require.Equal(t, "prod", c.Environment)
					require.True(t, c.Debug)
				})
			}
		})

		t.Run("invalid flags", func(t *testing.T) {
			c := NewConfig()

			err := c.ParseFlags([]string{
				"--invalid-flag", "value",
			})

			require.Error(t, err, "invalid flag should return an error")
		})
	})

	t.Run("admin password required with admin email", func(t *testing.T) {
		c := NewConfig()
		c.SecretKey = "secret"
		c.InitialAdminEmail = "admin@example.com"

		require.Error(t, c.Validate())
	})
}
