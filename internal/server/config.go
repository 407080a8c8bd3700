package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/malbeclabs/duckdb-mcp/internal/catalog"
	"github.com/malbeclabs/duckdb-mcp/internal/dispatch"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
	defaultListenAddr        = "127.0.0.1:8010"
)

type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportStdio, TransportHTTP:
		return t, nil
	case "":
		return TransportStdio, nil
	default:
		return "", fmt.Errorf("unsupported transport %q (expected stdio or http)", s)
	}
}

type Config struct {
	Logger *slog.Logger

	Dispatcher *dispatch.Dispatcher
	Catalog    *catalog.Catalog

	Version           string
	Transport         Transport
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}
	if c.Catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	transport, err := ParseTransport(string(c.Transport))
	if err != nil {
		return err
	}
	c.Transport = transport
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
