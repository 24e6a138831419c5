package api_test

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/typeroom/internal/api"
	"github.com/mcoot/typeroom/internal/factory"
	"github.com/mcoot/typeroom/internal/testutil"
)

func TestServerLifecycle(t *testing.T) {
	app := factory.NewTestApp()
	t.Cleanup(func() { _ = app.Close() })

	cfg := api.DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	server := api.NewServer(app.Handler(), cfg, testutil.NopLogger())

	shutdownHooks := make(chan struct{}, 1)
	server.OnShutdown(func() { shutdownHooks <- struct{}{} })

	require.NoError(t, server.Listen())
	assert.False(t, strings.HasSuffix(server.Addr(), ":0"), server.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	resp, err := http.Get("http://" + server.Addr() + "/api/v1/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, server.Shutdown(context.Background()))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}

	select {
	case <-shutdownHooks:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hook did not run")
	}
}

func TestServerListenFailsOnBusyPort(t *testing.T) {
	cfg := api.DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	first := api.NewServer(http.NotFoundHandler(), cfg, testutil.NopLogger())
	require.NoError(t, first.Listen())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	go func() { _ = first.Start() }()

	_, port, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)

	busy := cfg
	busy.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	second := api.NewServer(http.NotFoundHandler(), busy, testutil.NopLogger())
	assert.Error(t, second.Listen())
}
