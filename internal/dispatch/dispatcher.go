package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jellydator/ttlcache/v3"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/duckdb-mcp/internal/metrics"
	"github.com/malbeclabs/duckdb-mcp/internal/registry"
)

type handlerFunc func(ctx context.Context, in any) (string, error)

// Dispatcher routes validated tool calls to their handlers and turns the
// outcome into a single text result or an error.
type Dispatcher struct {
	log *slog.Logger
	cfg Config

	schemas    *ttlcache.Cache[string, string]
	schemasMu  sync.Mutex
	schemasGen uint64

	handlers map[string]handlerFunc
}

func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate dispatch config: %w", err)
	}

	d := &Dispatcher{
		log: cfg.Logger,
		cfg: cfg,
	}
	if cfg.SchemaCacheTTL > 0 {
		d.schemas = ttlcache.New(
			ttlcache.WithTTL[string, string](cfg.SchemaCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		)
	}

	d.handlers = map[string]handlerFunc{
		registry.ToolInitializeConnection: d.handleInitializeConnection,
		registry.ToolReadSchemas:          d.handleReadSchemas,
		registry.ToolExecuteQuery:         d.handleExecuteQuery,
	}
	for _, desc := range cfg.Registry.Tools() {
		if _, ok := d.handlers[desc.Name]; !ok {
			return nil, fmt.Errorf("no handler for tool %q", desc.Name)
		}
	}

	return d, nil
}

// Call validates args for the named tool and runs its handler.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	in, err := d.cfg.Registry.Validate(name, args)
	if err != nil {
		d.observe(name, 0, err)
		return "", err
	}
	return d.invoke(ctx, name, in)
}

// CallRaw is Call for arguments still encoded as JSON.
func (d *Dispatcher) CallRaw(ctx context.Context, name string, raw json.RawMessage) (string, error) {
	in, err := d.cfg.Registry.ValidateRaw(name, raw)
	if err != nil {
		d.observe(name, 0, err)
		return "", err
	}
	return d.invoke(ctx, name, in)
}

// Register adds every registry tool to the MCP server, along with the
// middleware that lists them in declaration order.
func (d *Dispatcher) Register(server *mcp.Server) {
	for _, tool := range d.Tools() {
		server.AddTool(tool, d.Handler(tool.Name))
	}
	server.AddReceivingMiddleware(d.Middleware())
}

// Tools returns the protocol tools in registry order.
func (d *Dispatcher) Tools() []*mcp.Tool {
	descs := d.cfg.Registry.Tools()
	tools := make([]*mcp.Tool, 0, len(descs))
	for _, desc := range descs {
		tools = append(tools, &mcp.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		})
	}
	return tools
}

// Middleware answers tools/list itself; the server would otherwise sort the
// tools by name.
func (d *Dispatcher) Middleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method == "tools/list" {
				return &mcp.ListToolsResult{Tools: d.Tools()}, nil
			}
			return next(ctx, method, req)
		}
	}
}

// Handler adapts the named tool to the MCP tool handler signature. Failures
// are returned as errors so they surface as protocol errors, never alongside
// content.
func (d *Dispatcher) Handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		text, err := d.CallRaw(ctx, name, raw)
		if err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func (d *Dispatcher) invoke(ctx context.Context, name string, in any) (string, error) {
	handler, ok := d.handlers[name]
	if !ok {
		err := fmt.Errorf("%w: %q", registry.ErrUnknownTool, name)
		d.observe(name, 0, err)
		return "", err
	}

	start := d.cfg.Clock.Now()
	text, err := handler(ctx, in)
	duration := d.cfg.Clock.Since(start).Seconds()
	d.observe(name, duration, err)

	if err != nil {
		d.log.Debug("mcp/tool: call failed", "tool", name, "duration", duration, "error", err)
		return "", err
	}
	d.log.Debug("mcp/tool: call succeeded", "tool", name, "duration", duration)
	return text, nil
}

func (d *Dispatcher) observe(name string, duration float64, err error) {
	// Unknown names are not used as label values.
	if _, ok := d.cfg.Registry.Lookup(name); !ok {
		name = "unknown"
	}
	status := "success"
	var verr *registry.ValidationError
	switch {
	case errors.As(err, &verr):
		status = "invalid"
	case err != nil:
		status = "error"
	}
	metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
	if status != "invalid" {
		metrics.ToolCallDuration.WithLabelValues(name).Observe(duration)
	}
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, d.cfg.QueryTimeout)
	}
	return context.WithCancel(ctx)
}
