package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/malbeclabs/duckdb-mcp/internal/duck"
	"github.com/malbeclabs/duckdb-mcp/internal/metrics"
)

const (
	attachMotherDuckSQL = `ATTACH IF NOT EXISTS 'md:'`

	listDatabasesSQL = `
		SELECT database_name
		FROM duckdb_databases()
		WHERE NOT internal
		  AND database_name NOT IN ('system', 'temp')
		ORDER BY database_name
	`
)

// Session is a live connection derived from the engine.
type Session struct {
	ID        string
	Kind      Kind
	OpenedAt  time.Time
	Databases []string

	conn duck.Connection
}

func (s *Session) Conn() duck.Connection {
	return s.conn
}

// Manager owns the process-wide engine and the single active session.
//
// The engine is created lazily on the first successful Open and lives until
// the process exits. Open swaps the active session under a write lock, so a
// replacement waits for queries running through WithSession to finish.
type Manager struct {
	log *slog.Logger
	cfg Config

	engineMu sync.Mutex
	engine   duck.DB

	mu      sync.RWMutex
	current *Session
}

func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate session config: %w", err)
	}
	return &Manager{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// EnsureEngine returns the engine, creating it on first use.
func (m *Manager) EnsureEngine(ctx context.Context) (duck.DB, error) {
	m.engineMu.Lock()
	defer m.engineMu.Unlock()

	if m.engine != nil {
		return m.engine, nil
	}

	db, err := m.cfg.OpenDB(ctx, m.cfg.DBPath, m.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	m.engine = db
	m.log.Info("session: engine created", "path", db.Path(), "catalog", db.Catalog(), "schema", db.Schema())
	return db, nil
}

// Open derives a fresh session from the engine and makes it the active one.
// A failed Open leaves the previous session in place.
func (m *Manager) Open(ctx context.Context, kind Kind) (*Session, error) {
	switch kind {
	case KindDuckDB, KindMotherDuck:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, string(kind))
	}

	if kind.RequiresCredential() && !m.hasCredential() {
		return nil, fmt.Errorf("%w: set %s to connect to MotherDuck", ErrMissingCredential, strings.Join(m.cfg.CredentialEnvVars, " or "))
	}

	engine, err := m.EnsureEngine(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := engine.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if kind == KindMotherDuck {
		if _, err := conn.ExecContext(ctx, attachMotherDuckSQL); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to attach motherduck: %w", err)
		}
	}

	databases, err := listDatabases(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sess := &Session{
		ID:        ulid.Make().String(),
		Kind:      kind,
		OpenedAt:  m.cfg.Clock.Now(),
		Databases: databases,
		conn:      conn,
	}

	m.mu.Lock()
	old := m.current
	if old != nil {
		if err := old.conn.Close(); err != nil {
			m.log.Warn("session: failed to close replaced session", "session_id", old.ID, "error", err)
		}
	}
	m.current = sess
	m.mu.Unlock()

	if old != nil {
		m.log.Info("session: replaced", "old_session_id", old.ID, "session_id", sess.ID)
	}

	metrics.SessionsOpenedTotal.WithLabelValues(string(kind)).Inc()
	m.log.Info("session: opened", "session_id", sess.ID, "kind", kind, "databases", len(databases))

	return sess, nil
}

// Current returns the active session, if any.
func (m *Manager) Current() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.current != nil
}

// WithSession runs fn against the active session. The session cannot be
// replaced until fn returns.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context, sess *Session) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return ErrNoActiveSession
	}
	return fn(ctx, m.current)
}

// Close releases the active session and the engine. Only used at process exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	var errs []error
	if m.current != nil {
		errs = append(errs, m.current.conn.Close())
		m.current = nil
	}
	m.mu.Unlock()

	m.engineMu.Lock()
	defer m.engineMu.Unlock()
	if m.engine != nil {
		errs = append(errs, m.engine.Close())
		m.engine = nil
	}
	return errors.Join(errs...)
}

func (m *Manager) hasCredential() bool {
	for _, name := range m.cfg.CredentialEnvVars {
		if strings.TrimSpace(m.cfg.Getenv(name)) != "" {
			return true
		}
	}
	return false
}

func listDatabases(ctx context.Context, conn duck.Connection) ([]string, error) {
	rows, err := conn.QueryContext(ctx, listDatabasesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		databases = append(databases, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating databases: %w", err)
	}
	return databases, nil
}
