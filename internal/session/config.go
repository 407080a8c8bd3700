package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/duckdb-mcp/internal/duck"
)

// DefaultCredentialEnvVars are consulted in order for the MotherDuck token.
var DefaultCredentialEnvVars = []string{"motherduck_token", "MOTHERDUCK_TOKEN"}

type OpenDBFunc func(ctx context.Context, dbPath string, log *slog.Logger) (duck.DB, error)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// DBPath backs the engine; empty or ":memory:" keeps it in memory.
	DBPath string

	CredentialEnvVars []string
	Getenv            func(string) string
	OpenDB            OpenDBFunc
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.DBPath == "" {
		c.DBPath = duck.MemoryPath
	}
	if len(c.CredentialEnvVars) == 0 {
		c.CredentialEnvVars = DefaultCredentialEnvVars
	}
	if c.Getenv == nil {
		c.Getenv = os.Getenv
	}
	if c.OpenDB == nil {
		c.OpenDB = duck.NewDB
	}
	return nil
}
