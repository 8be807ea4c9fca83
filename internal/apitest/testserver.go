package apitest

import (
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// TestServer is the fake API listening on a local port for the test lifetime
type TestServer struct {
	*Server

	// API base URL, BasePath included
	URL string
}

// Start runs the fake API and stops it on test cleanup
// Unset secret key and hasher get fast test defaults
func Start(t testing.TB, cfg Config) *TestServer {
	t.Helper()

	if cfg.SecretKey == "" {
		cfg.SecretKey = "test-secret-key"
	}
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{Cost: bcrypt.MinCost}
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("fake api could not be created: %v", err)
	}

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	return &TestServer{Server: s, URL: ts.URL + BasePath}
}
