package querier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatTable:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported result format %q (expected json or table)", s)
	}
}

// Render serializes the result set as text. JSON output is an array of row
// objects with sorted keys and two-space indentation.
func (r QueryResponse) Render(format Format) (string, error) {
	switch format {
	case FormatJSON, "":
		rows := r.Rows
		if rows == nil {
			rows = []QueryRow{}
		}
		b, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		return string(b), nil
	case FormatTable:
		return r.renderTable(), nil
	default:
		return "", fmt.Errorf("unsupported result format %q", format)
	}
}

func (r QueryResponse) renderTable() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(r.Columns)

	for _, row := range r.Rows {
		cells := make([]string, len(r.Columns))
		for i, col := range r.Columns {
			cells[i] = cellString(row[col])
		}
		table.Append(cells)
	}
	table.Render()

	fmt.Fprintf(&buf, "(%d rows)\n", r.Count)
	return buf.String()
}

func cellString(val any) string {
	switch v := val.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}
