package catalog

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(Config{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))})
	require.NoError(t, err)
	return c
}

func TestCatalog_New(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "logger is required")
}

func TestCatalog_Prompts(t *testing.T) {
	t.Parallel()

	c := testCatalog(t)

	prompts := c.Prompts()
	require.Len(t, prompts, 1)
	require.Equal(t, InitialPromptName, prompts[0].Name)

	t.Run("get returns one user text message", func(t *testing.T) {
		t.Parallel()

		res, err := c.GetPrompt(t.Context(), InitialPromptName)
		require.NoError(t, err)
		require.Len(t, res.Messages, 1)
		require.Equal(t, mcp.Role("user"), res.Messages[0].Role)

		text, ok := res.Messages[0].Content.(*mcp.TextContent)
		require.True(t, ok)
		require.Equal(t, initialPromptText, text.Text)
		require.Contains(t, text.Text, "initialize-connection")
	})

	t.Run("unknown prompt", func(t *testing.T) {
		t.Parallel()

		_, err := c.GetPrompt(t.Context(), "other")
		require.ErrorIs(t, err, ErrUnknownPrompt)
	})
}

func TestCatalog_Resources(t *testing.T) {
	t.Parallel()

	c := testCatalog(t)

	require.NotNil(t, c.ListResources())
	require.Empty(t, c.ListResources())

	_, err := c.ReadResource(t.Context(), "duckdb://memory")
	require.ErrorIs(t, err, ErrUnsupportedResource)
}

func TestCatalog_Middleware(t *testing.T) {
	t.Parallel()

	c := testCatalog(t)

	var forwarded []string
	next := func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		forwarded = append(forwarded, method)
		return &mcp.GetPromptResult{}, nil
	}
	handler := c.Middleware()(next)

	res, err := handler(t.Context(), "resources/list", &mcp.ListResourcesRequest{Params: &mcp.ListResourcesParams{}})
	require.NoError(t, err)
	list, ok := res.(*mcp.ListResourcesResult)
	require.True(t, ok)
	require.Empty(t, list.Resources)

	_, err = handler(t.Context(), "resources/read", &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "file:///etc/passwd"}})
	require.ErrorIs(t, err, ErrUnsupportedResource)

	_, err = handler(t.Context(), "prompts/get", &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "other"}})
	require.ErrorIs(t, err, ErrUnknownPrompt)

	_, err = handler(t.Context(), "prompts/get", &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: InitialPromptName}})
	require.NoError(t, err)

	_, err = handler(t.Context(), "tools/list", &mcp.ListToolsRequest{Params: &mcp.ListToolsParams{}})
	require.NoError(t, err)

	require.Equal(t, []string{"prompts/get", "tools/list"}, forwarded)
}
