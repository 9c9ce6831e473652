package server

import (
	"net"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairn-scm/cairn/src/client"
	"github.com/cairn-scm/cairn/src/common"
	"github.com/cairn-scm/cairn/src/config"
	"github.com/cairn-scm/cairn/src/medium"
	"github.com/cairn-scm/cairn/src/signals"
)

func newTCPServer(t *testing.T) (*TCPServer, chan error) {
	cfg := config.NewTestConfig(t)
	cfg.Directory = t.TempDir()
	cfg.BindAddr = "127.0.0.1:0"

	srv, err := NewTCPServer(cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	return srv, done
}

func dial(t *testing.T, srv *TCPServer) *client.SmartClient {
	host, portStr, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cm := medium.NewTCPClientMedium(host, port, common.NewTestEntry(t, "client"))
	t.Cleanup(func() { cm.Disconnect() })
	return client.New(cm, common.NewTestEntry(t, "client"))
}

func TestTCPServerEndToEnd(t *testing.T) {
	srv, done := newTCPServer(t)
	defer srv.Shutdown()

	c := dial(t, srv)
	version, err := c.Hello()
	require.NoError(t, err)
	assert.Equal(t, "2", version)

	readonly, err := c.IsReadonly()
	require.NoError(t, err)
	assert.False(t, readonly)

	// Two clients may talk at once; each connection serves sequentially.
	c2 := dial(t, srv)
	_, err = c2.Hello()
	require.NoError(t, err)

	srv.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv, done := newTCPServer(t)

	srv.Shutdown()
	srv.Shutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestHangupSignalShutsDown(t *testing.T) {
	logger := common.NewTestEntry(t, "server")
	restore := signals.InstallHangupHandler(logger)
	defer restore()

	srv, done := newTCPServer(t)

	// A round trip guarantees Serve has registered its shutdown callback.
	c := dial(t, srv)
	_, err := c.Hello()
	require.NoError(t, err)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		srv.Shutdown()
		t.Fatal("SIGHUP did not shut the server down")
	}
}

func TestPipeServerReadonly(t *testing.T) {
	cfg := config.NewTestConfig(t)
	cfg.Directory = t.TempDir()
	cfg.ReadOnly = true

	serverIn, clientOut := newPipePair()
	clientIn, serverOut := newPipePair()

	srv, err := NewPipeServer(cfg, serverIn, serverOut)
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Stop()

	cm := medium.NewPipesClientMedium(clientIn, clientOut, common.NewTestEntry(t, "client"))
	c := client.New(cm, common.NewTestEntry(t, "client"))

	readonly, err := c.IsReadonly()
	require.NoError(t, err)
	assert.True(t, readonly)

	err = c.PutFile("/f", []byte("x"))
	require.Error(t, err)
	remote, ok := err.(*client.RemoteError)
	require.True(t, ok)
	assert.True(t, remote.Is("ReadOnlyError"))
}

// newPipePair builds one direction of a duplex pipe connection.
func newPipePair() (net.Conn, net.Conn) {
	return net.Pipe()
}
