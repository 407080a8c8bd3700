package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/duckdb-mcp/internal/registry"
	"github.com/malbeclabs/duckdb-mcp/internal/session"
)

func (d *Dispatcher) handleInitializeConnection(ctx context.Context, in any) (string, error) {
	req := in.(registry.InitializeConnectionInput)

	kind, err := session.ParseKind(req.Type)
	if err != nil {
		return "", err
	}

	sess, err := d.cfg.Sessions.Open(ctx, kind)
	if err != nil {
		if errors.Is(err, session.ErrUnsupportedKind) || errors.Is(err, session.ErrMissingCredential) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// Cached schemas belong to the replaced session.
	d.invalidateSchemas()

	d.log.Info("mcp/tool: connection initialized", "session_id", sess.ID, "kind", sess.Kind)

	return fmt.Sprintf("Connected to %s. Available databases:\n%s", displayName(sess.Kind), strings.Join(sess.Databases, ",\n")), nil
}

func displayName(kind session.Kind) string {
	switch kind {
	case session.KindMotherDuck:
		return "MotherDuck"
	default:
		return "DuckDB"
	}
}
