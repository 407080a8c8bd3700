package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/duckdb-mcp/internal/catalog"
	"github.com/malbeclabs/duckdb-mcp/internal/dispatch"
	"github.com/malbeclabs/duckdb-mcp/internal/registry"
	"github.com/malbeclabs/duckdb-mcp/internal/session"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T, getenv func(string) string) Config {
	t.Helper()

	log := testLogger(t)

	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	sessions, err := session.New(session.Config{
		Logger: log,
		Clock:  clockwork.NewFakeClock(),
		Getenv: getenv,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	reg, err := registry.New()
	require.NoError(t, err)

	d, err := dispatch.New(dispatch.Config{
		Logger:         log,
		Registry:       reg,
		Sessions:       sessions,
		SchemaCacheTTL: time.Minute,
	})
	require.NoError(t, err)

	c, err := catalog.New(catalog.Config{Logger: log})
	require.NoError(t, err)

	return Config{
		Logger:     log,
		Dispatcher: d,
		Catalog:    c,
		Version:    "test",
	}
}

func TestMCP_Server_Config_Validate(t *testing.T) {
	t.Parallel()

	t.Run("requires dependencies", func(t *testing.T) {
		t.Parallel()

		cfg := Config{Logger: testLogger(t)}
		err := cfg.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "dispatcher is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t, nil)
		require.NoError(t, cfg.Validate())
		require.Equal(t, TransportStdio, cfg.Transport)
		require.Equal(t, defaultListenAddr, cfg.ListenAddr)
		require.Equal(t, defaultReadHeaderTimeout, cfg.ReadHeaderTimeout)
		require.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
	})

	t.Run("rejects unknown transport", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t, nil)
		cfg.Transport = "websocket"
		err := cfg.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported transport")
	})
}

func TestMCP_Server_ParseTransport(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Transport{"": TransportStdio, "stdio": TransportStdio, " HTTP ": TransportHTTP} {
		got, err := ParseTransport(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestMCP_Server_ReadyzHandler(t *testing.T) {
	t.Parallel()

	s, err := New(testConfig(t, nil))
	require.NoError(t, err)

	t.Run("not ready before run", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rr := httptest.NewRecorder()

		s.readyzHandler(rr, req)

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Equal(t, "server not ready\n", rr.Body.String())
	})

	t.Run("ready while running", func(t *testing.T) {
		s.ready.Store(true)
		defer s.ready.Store(false)

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rr := httptest.NewRecorder()

		s.readyzHandler(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "ok\n", rr.Body.String())
	})
}

func TestMCP_Server_HealthzHandler(t *testing.T) {
	t.Parallel()

	s, err := New(testConfig(t, nil))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok\n", rr.Body.String())
}

func TestMCP_Server_RunHTTP(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	cfg.Transport = TransportHTTP
	cfg.ListenAddr = "127.0.0.1:0"
	s, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, s.ready.Load, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	require.False(t, s.ready.Load())
}
