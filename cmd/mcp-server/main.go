package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/duckdb-mcp/internal/catalog"
	"github.com/malbeclabs/duckdb-mcp/internal/dispatch"
	"github.com/malbeclabs/duckdb-mcp/internal/duck"
	"github.com/malbeclabs/duckdb-mcp/internal/metrics"
	"github.com/malbeclabs/duckdb-mcp/internal/querier"
	"github.com/malbeclabs/duckdb-mcp/internal/registry"
	"github.com/malbeclabs/duckdb-mcp/internal/server"
	"github.com/malbeclabs/duckdb-mcp/internal/session"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultTransport      = "stdio"
	defaultListenAddr     = "127.0.0.1:8010"
	defaultSchemaCacheTTL = 30 * time.Second
	defaultDBPath         = duck.MemoryPath

	dbPathEnvVar     = "MCP_DB_PATH"
	transportEnvVar  = "MCP_TRANSPORT"
	listenAddrEnvVar = "MCP_LISTEN_ADDR"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	transportFlag := flag.String("transport", "", "MCP transport: stdio or http (or set MCP_TRANSPORT env var)")
	listenAddrFlag := flag.String("listen-addr", "", "HTTP server listen address when --transport=http (or set MCP_LISTEN_ADDR env var)")
	metricsAddrFlag := flag.String("metrics-addr", "", "Address to listen on for prometheus metrics (disabled when empty)")
	dbPathFlag := flag.String("db-path", "", "Path to DuckDB database file (empty for in-memory, or set MCP_DB_PATH env var)")
	queryTimeoutFlag := flag.Duration("query-timeout", 0, "timeout for each engine call (0 to disable)")
	schemaCacheTTLFlag := flag.Duration("schema-cache-ttl", defaultSchemaCacheTTL, "how long read-schemas results are reused (0 to disable)")
	resultFormatFlag := flag.String("result-format", string(querier.FormatJSON), "execute-query result format: json or table")
	envFileFlag := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	// A missing env file is not an error.
	_ = godotenv.Load(*envFileFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Stdout carries protocol frames on the stdio transport.
	log := newLogger(os.Stderr, *verboseFlag)

	transport, err := server.ParseTransport(firstNonEmpty(*transportFlag, os.Getenv(transportEnvVar), defaultTransport))
	if err != nil {
		return err
	}
	resultFormat, err := querier.ParseFormat(*resultFormatFlag)
	if err != nil {
		return err
	}

	// Determine database path: flag takes precedence, then env var, then default
	dbPath := firstNonEmpty(*dbPathFlag, os.Getenv(dbPathEnvVar), defaultDBPath)
	if dbPath != duck.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		log.Info("using persistent database", "path", dbPath)
	} else {
		log.Info("using in-memory database")
	}

	clock := clockwork.NewRealClock()

	sessions, err := session.New(session.Config{
		Logger: log,
		Clock:  clock,
		DBPath: dbPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Warn("failed to close sessions", "error", err)
		}
	}()

	reg, err := registry.New()
	if err != nil {
		return fmt.Errorf("failed to create tool registry: %w", err)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Logger:         log,
		Clock:          clock,
		Registry:       reg,
		Sessions:       sessions,
		SchemaCacheTTL: *schemaCacheTTLFlag,
		QueryTimeout:   *queryTimeoutFlag,
		ResultFormat:   resultFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	cat, err := catalog.New(catalog.Config{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:     log,
		Dispatcher: dispatcher,
		Catalog:    cat,
		Version:    version,
		Transport:  transport,
		ListenAddr: firstNonEmpty(*listenAddrFlag, os.Getenv(listenAddrEnvVar), defaultListenAddr),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The stdio transport ends when the client closes stdin.
		defer cancel()
		return srv.Run(ctx)
	})
	if *metricsAddrFlag != "" {
		g.Go(func() error {
			return serveMetrics(ctx, log, *metricsAddrFlag)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve prometheus metrics: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
