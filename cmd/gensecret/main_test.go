package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	t.Run("print key", func(t *testing.T) {
		var out bytes.Buffer

		err := run(nil, &out)

		require.NoError(t, err)
		key, err := hex.DecodeString(strings.TrimSpace(out.String()))
		require.NoError(t, err, "key must be hex encoded")
		require.Len(t, key, defaultKeyBytesLen)
	})

	t.Run("custom length", func(t *testing.T) {
		var out bytes.Buffer

		err := run([]string{"-b", "64"}, &out)

		require.NoError(t, err)
		require.Len(t, strings.TrimSpace(out.String()), 128)
	})

	t.Run("too short", func(t *testing.T) {
		err := run([]string{"--bytes", "8"}, &bytes.Buffer{})

		require.Error(t, err)
	})

	t.Run("keys differ", func(t *testing.T) {
		var first, second bytes.Buffer

		require.NoError(t, run(nil, &first))
		require.NoError(t, run(nil, &second))

		require.NotEqual(t, first.String(), second.String())
	})

	t.Run("env file keeps other variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("DEBUG=true\nSECRET_KEY=old\n"), 0o600))

		err := run([]string{"--env-file", path}, &bytes.Buffer{})

		require.NoError(t, err)
		env, err := godotenv.Read(path)
		require.NoError(t, err)
		require.Equal(t, "true", env["DEBUG"])
		require.NotEqual(t, "old", env["SECRET_KEY"])
		require.Len(t, env["SECRET_KEY"], 2*defaultKeyBytesLen)
	})

	t.Run("env file created", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")

		err := run([]string{"-f", path}, &bytes.Buffer{})

		require.NoError(t, err)
		env, err := godotenv.Read(path)
		require.NoError(t, err)
		require.Contains(t, env, "SECRET_KEY")
	})
}
