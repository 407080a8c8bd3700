package registry

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	return r
}

func toolNames(tools []Descriptor) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestRegistry_Tools(t *testing.T) {
	t.Parallel()

	t.Run("returns the three tools in stable order", func(t *testing.T) {
		t.Parallel()

		r := testRegistry(t)
		want := []string{ToolInitializeConnection, ToolReadSchemas, ToolExecuteQuery}
		for range 3 {
			if diff := cmp.Diff(want, toolNames(r.Tools())); diff != "" {
				t.Fatalf("unexpected tools (-want +got):\n%s", diff)
			}
		}
	})

	t.Run("describes required string fields", func(t *testing.T) {
		t.Parallel()

		r := testRegistry(t)
		fields := map[string]string{
			ToolInitializeConnection: "type",
			ToolReadSchemas:          "database_name",
			ToolExecuteQuery:         "query",
		}
		for _, tool := range r.Tools() {
			field := fields[tool.Name]
			require.NotEmpty(t, tool.Description, tool.Name)
			require.NotNil(t, tool.InputSchema, tool.Name)
			require.Equal(t, "object", tool.InputSchema.Type, tool.Name)
			require.Equal(t, []string{field}, tool.InputSchema.Required, tool.Name)
			require.Contains(t, tool.InputSchema.Properties, field, tool.Name)
			require.Equal(t, "string", tool.InputSchema.Properties[field].Type, tool.Name)
		}
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		t.Parallel()

		r := testRegistry(t)
		tools := r.Tools()
		tools[0].Name = "changed"
		require.Equal(t, ToolInitializeConnection, r.Tools()[0].Name)
	})

	t.Run("lookup", func(t *testing.T) {
		t.Parallel()

		r := testRegistry(t)
		desc, ok := r.Lookup(ToolReadSchemas)
		require.True(t, ok)
		require.Equal(t, ToolReadSchemas, desc.Name)

		_, ok = r.Lookup("drop-database")
		require.False(t, ok)
	})
}

func TestRegistry_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		want    any
		wantErr bool
	}{
		{
			name: "initialize-connection valid",
			tool: ToolInitializeConnection,
			args: map[string]any{"type": "DuckDB"},
			want: InitializeConnectionInput{Type: "DuckDB"},
		},
		{
			name: "initialize-connection keeps value as given",
			tool: ToolInitializeConnection,
			args: map[string]any{"type": "  motherduck "},
			want: InitializeConnectionInput{Type: "  motherduck "},
		},
		{
			name:    "initialize-connection missing type",
			tool:    ToolInitializeConnection,
			args:    map[string]any{},
			wantErr: true,
		},
		{
			name:    "initialize-connection nil args",
			tool:    ToolInitializeConnection,
			args:    nil,
			wantErr: true,
		},
		{
			name:    "initialize-connection numeric type",
			tool:    ToolInitializeConnection,
			args:    map[string]any{"type": float64(1)},
			wantErr: true,
		},
		{
			name:    "initialize-connection null type",
			tool:    ToolInitializeConnection,
			args:    map[string]any{"type": nil},
			wantErr: true,
		},
		{
			name: "read-schemas valid",
			tool: ToolReadSchemas,
			args: map[string]any{"database_name": "memory"},
			want: ReadSchemasInput{DatabaseName: "memory"},
		},
		{
			name:    "read-schemas wrong field",
			tool:    ToolReadSchemas,
			args:    map[string]any{"database": "memory"},
			wantErr: true,
		},
		{
			name:    "read-schemas boolean",
			tool:    ToolReadSchemas,
			args:    map[string]any{"database_name": true},
			wantErr: true,
		},
		{
			name: "execute-query valid",
			tool: ToolExecuteQuery,
			args: map[string]any{"query": "SELECT 1"},
			want: ExecuteQueryInput{Query: "SELECT 1"},
		},
		{
			name: "execute-query ignores extra fields",
			tool: ToolExecuteQuery,
			args: map[string]any{"query": "SELECT 1", "limit": float64(10)},
			want: ExecuteQueryInput{Query: "SELECT 1"},
		},
		{
			name: "execute-query empty string is a string",
			tool: ToolExecuteQuery,
			args: map[string]any{"query": ""},
			want: ExecuteQueryInput{Query: ""},
		},
		{
			name:    "execute-query array",
			tool:    ToolExecuteQuery,
			args:    map[string]any{"query": []any{"SELECT 1"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := testRegistry(t)
			got, err := r.Validate(tt.tool, tt.args)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				require.Equal(t, tt.tool, verr.Tool)
				require.NotEmpty(t, verr.Message)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown tool", func(t *testing.T) {
		t.Parallel()

		r := testRegistry(t)
		_, err := r.Validate("drop-database", map[string]any{"query": "x"})
		require.ErrorIs(t, err, ErrUnknownTool)
		require.Contains(t, err.Error(), "drop-database")
	})
}

func TestRegistry_ValidateRaw(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     json.RawMessage
		want    any
		wantErr bool
	}{
		{name: "object", raw: json.RawMessage(`{"query":"SELECT 1"}`), want: ExecuteQueryInput{Query: "SELECT 1"}},
		{name: "empty", raw: nil, wantErr: true},
		{name: "null", raw: json.RawMessage(`null`), wantErr: true},
		{name: "string", raw: json.RawMessage(`"SELECT 1"`), wantErr: true},
		{name: "array", raw: json.RawMessage(`[{"query":"SELECT 1"}]`), wantErr: true},
		{name: "malformed", raw: json.RawMessage(`{"query":`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := testRegistry(t)
			got, err := r.ValidateRaw(ToolExecuteQuery, tt.raw)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown tool", func(t *testing.T) {
		t.Parallel()

		r := testRegistry(t)
		_, err := r.ValidateRaw("nope", json.RawMessage(`{}`))
		require.ErrorIs(t, err, ErrUnknownTool)
	})
}
