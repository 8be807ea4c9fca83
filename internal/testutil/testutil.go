package testutil

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Return random free port on 127.0.0.1 address
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

// Wait until GET url answers 200 OK
// Fail if it doesn't within timeout, so you may be sure server started ok
func WaitHealthy(t *testing.T, url string, timeout time.Duration) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	require.Eventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close() // nolint:errcheck
		return resp.StatusCode == http.StatusOK
	}, timeout, 20*time.Millisecond, "server at %s did not become healthy", url)
}
