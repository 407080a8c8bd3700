package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const InitialPromptName = "duckdb-motherduck-initial-prompt"

var (
	ErrUnknownPrompt       = errors.New("unknown prompt")
	ErrUnsupportedResource = errors.New("resources are not supported")
)

const initialPromptText = `You are working with a DuckDB database, optionally backed by MotherDuck, through three tools.

1. initialize-connection: call this first with type "DuckDB" for a local in-memory database or
   "MotherDuck" for the hosted service. The response lists the databases available on the connection.
   Calling it again replaces the current connection; temporary tables and settings are lost.
2. read-schemas: pass one of the listed database names to get the CREATE statements of its tables
   and views. Names in the output are qualified with the database name.
3. execute-query: run any SQL statement DuckDB accepts. Results come back as a JSON array of rows.

Guidelines:
- Read the schema before writing queries. Do not guess table or column names.
- Qualify tables with their database name when more than one database is attached.
- Prefer aggregations with GROUP BY and a LIMIT over returning large numbers of raw rows.
- DuckDB SQL is close to PostgreSQL. It also supports reading files directly, e.g.
  SELECT * FROM 'data.parquet' or read_csv('data.csv').
- When a query fails, read the error message, fix the statement and try again.`

type Config struct {
	Logger *slog.Logger
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Catalog serves the static prompt and the empty resource listing.
type Catalog struct {
	log *slog.Logger
}

func New(cfg Config) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate catalog config: %w", err)
	}
	return &Catalog{log: cfg.Logger}, nil
}

func (c *Catalog) Prompts() []*mcp.Prompt {
	return []*mcp.Prompt{{
		Name:        InitialPromptName,
		Description: "Instructions for exploring and querying a DuckDB or MotherDuck database with the available tools.",
	}}
}

func (c *Catalog) GetPrompt(_ context.Context, name string) (*mcp.GetPromptResult, error) {
	if name != InitialPromptName {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrompt, name)
	}
	return &mcp.GetPromptResult{
		Description: "DuckDB and MotherDuck usage instructions",
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: initialPromptText},
		}},
	}, nil
}

// ListResources always returns an empty, non-nil list.
func (c *Catalog) ListResources() []*mcp.Resource {
	return []*mcp.Resource{}
}

func (c *Catalog) ReadResource(_ context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedResource, uri)
}

// Register adds the prompt and the resource middleware to the server.
func (c *Catalog) Register(server *mcp.Server) {
	for _, prompt := range c.Prompts() {
		server.AddPrompt(prompt, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return c.GetPrompt(ctx, req.Params.Name)
		})
	}
	server.AddReceivingMiddleware(c.Middleware())
}

// Middleware answers resource requests and unknown prompt lookups before the
// server's default routing sees them.
func (c *Catalog) Middleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			switch method {
			case "resources/list":
				return &mcp.ListResourcesResult{Resources: c.ListResources()}, nil
			case "resources/templates/list":
				return &mcp.ListResourceTemplatesResult{ResourceTemplates: []*mcp.ResourceTemplate{}}, nil
			case "resources/read":
				var uri string
				if r, ok := req.(*mcp.ReadResourceRequest); ok && r.Params != nil {
					uri = r.Params.URI
				}
				c.log.Debug("mcp/catalog: resource read rejected", "uri", uri)
				_, err := c.ReadResource(ctx, uri)
				return nil, err
			case "prompts/get":
				if r, ok := req.(*mcp.GetPromptRequest); ok && r.Params != nil {
					if _, err := c.GetPrompt(ctx, r.Params.Name); err != nil {
						return nil, err
					}
				}
			}
			return next(ctx, method, req)
		}
	}
}
