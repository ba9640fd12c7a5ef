package client_test

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/daemon/client"
	"github.com/agentry-dev/agentry/internal/domain"
)

// holdConnections accepts on the listener and swallows everything the
// client sends without ever replying, like a daemon whose handler
// goroutines are wedged.
func holdConnections(t *testing.T, ln net.Listener) {
	t.Helper()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 1024)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
}

func TestPing_UnresponsiveDaemonIsBounded(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "agentry.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	defer ln.Close()
	holdConnections(t, ln)

	c := client.New(socket)
	done := make(chan error, 1)
	go func() { done <- c.Ping() }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ping did not give up on an unresponsive daemon")
	}
}

func TestVersion_UnresponsiveDaemonIsBounded(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "agentry.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	defer ln.Close()
	holdConnections(t, ln)

	c := client.New(socket)
	type result struct {
		version string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		v, err := c.Version()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		require.Error(t, r.err)
		assert.Empty(t, r.version)
	case <-time.After(2 * time.Second):
		t.Fatal("version probe did not give up on an unresponsive daemon")
	}
}

func TestPing_NoDaemon(t *testing.T) {
	c := client.New(filepath.Join(t.TempDir(), "missing.sock"))
	assert.ErrorIs(t, c.Ping(), domain.ErrDaemonNotRunning)
}
