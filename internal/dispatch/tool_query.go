package dispatch

import (
	"context"
	"fmt"

	"github.com/malbeclabs/duckdb-mcp/internal/querier"
	"github.com/malbeclabs/duckdb-mcp/internal/registry"
	"github.com/malbeclabs/duckdb-mcp/internal/session"
)

func (d *Dispatcher) handleExecuteQuery(ctx context.Context, in any) (string, error) {
	req := in.(registry.ExecuteQueryInput)

	d.log.Debug("mcp/tool: handling query", "sql", req.Query)

	var resp querier.QueryResponse
	err := d.cfg.Sessions.WithSession(ctx, func(ctx context.Context, sess *session.Session) error {
		ctx, cancel := d.withTimeout(ctx)
		defer cancel()

		// Any statement may change the catalog.
		d.invalidateSchemas()
		defer d.invalidateSchemas()

		var err error
		resp, err = querier.Query(ctx, sess.Conn(), req.Query)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrQueryFailed, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	text, err := resp.Render(d.cfg.ResultFormat)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return text, nil
}
