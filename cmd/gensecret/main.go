// Command gensecret generates the access token signing key of devapi.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	defaultKeyBytesLen = 32
	secretKeyEnv       = "SECRET_KEY"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

// run prints a new hex encoded key, or stores it as SECRET_KEY in the env file if one is given
func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	size := fs.IntP("bytes", "b", defaultKeyBytesLen, "Key length in bytes")
	envFile := fs.StringP("env-file", "f", "", "Write the key to this .env file, other variables are kept")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size < 16 {
		return fmt.Errorf("key of %d bytes is too short, at least 16 required", *size)
	}

	b := make([]byte, *size)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	key := hex.EncodeToString(b)

	if *envFile == "" {
		_, err := fmt.Fprintln(out, key)
		return err
	}

	env, err := godotenv.Read(*envFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		env = map[string]string{}
	case err != nil:
		return err
	}
	env[secretKeyEnv] = key

	if err := godotenv.Write(env, *envFile); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s written to %s\n", secretKeyEnv, *envFile)
	return err
}
