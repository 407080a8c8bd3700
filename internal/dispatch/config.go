package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/duckdb-mcp/internal/querier"
	"github.com/malbeclabs/duckdb-mcp/internal/registry"
	"github.com/malbeclabs/duckdb-mcp/internal/session"
)

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Registry *registry.Registry
	Sessions *session.Manager

	// SchemaCacheTTL bounds how long read-schemas output is reused. Zero disables the cache.
	SchemaCacheTTL time.Duration

	// QueryTimeout bounds each engine call. Zero leaves only the caller's context.
	QueryTimeout time.Duration

	ResultFormat querier.Format
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Sessions == nil {
		return fmt.Errorf("session manager is required")
	}
	if c.SchemaCacheTTL < 0 {
		return fmt.Errorf("schema cache ttl must not be negative")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must not be negative")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	format, err := querier.ParseFormat(string(c.ResultFormat))
	if err != nil {
		return err
	}
	c.ResultFormat = format
	return nil
}
