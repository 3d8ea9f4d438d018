package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/apkaspell/bdb/internal/config"
	"github.com/apkaspell/bdb/internal/ctl"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// startTestServer builds a controller and server listening on an ephemeral
// TCP port, returning the dialed address and a teardown func.
func startTestServer(t *testing.T) (addr string, teardown func()) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		ListenNetwork: true,
		InetAddr:      "127.0.0.1:0",
		DBFile:        filepath.Join(dir, "bdb.db"),
		WALFile:       filepath.Join(dir, "bdb.wal"),
	}

	ln, err := net.Listen("tcp", cfg.InetAddr)
	require.NoError(t, err)
	resolvedAddr := ln.Addr().String()
	require.NoError(t, ln.Close())
	cfg.InetAddr = resolvedAddr

	c, err := ctl.NewBlank(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, c.LoadFromStorage())
	srv := New(c, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()

	// Give the listener goroutine a moment to bind before returning.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, dialErr := net.DialTimeout("tcp", resolvedAddr, 50*time.Millisecond)
		if dialErr == nil {
			_ = conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never started listening on %s", resolvedAddr)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return resolvedAddr, func() {
		cancel()
		<-done
		_ = c.Close()
	}
}

func TestEndToEndHasAfterAdd(t *testing.T) {
	addr, teardown := startTestServer(t)
	defer teardown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// NewBloomFilter(db=0, bf=0)
	send(t, conn, []byte{2, 0, 255, 255, 3, 0, 0, 0, 0, 1, 0})
	require.Equal(t, []byte{0, 0xFF}, recv(t, conn))

	// Add(db=0, bf=0, elt=[42])
	send(t, conn, []byte{3, 0, 255, 255, 4, 0, 0, 0, 0, 0, 1, 42})
	require.Equal(t, []byte{0, 0xFF}, recv(t, conn))

	// Has(db=0, bf=0, elt=[42])
	send(t, conn, []byte{3, 2, 255, 255, 4, 0, 0, 0, 0, 0, 1, 42})
	require.Equal(t, []byte{0, 1, 0xFF}, recv(t, conn))
}

func TestEndToEndMissingFilterReturnsError(t *testing.T) {
	addr, teardown := startTestServer(t)
	defer teardown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// Has(db=0, bf=9, elt=[1]) against a filter that was never created.
	send(t, conn, []byte{3, 2, 255, 255, 4, 0, 0, 0, 0, 9, 1, 1})
	require.Equal(t, []byte{1, 0xFF}, recv(t, conn))
}

func send(t *testing.T, conn net.Conn, b []byte) {
	t.Helper()
	_, err := conn.Write(b)
	require.NoError(t, err)
}

func recv(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}
