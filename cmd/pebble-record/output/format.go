package output

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format selects how results are written.
type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML, FormatMsgpack:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, yaml or msgpack)", s)
	}
}

// Encode writes v in a machine-readable format. FormatTable falls back to JSON.
func Encode(w io.Writer, format Format, v any) error {
	v = Plain(v)
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		return enc.Encode(v)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// Rows writes column-keyed rows. Table output puts key first and the
// remaining columns in sorted order; other formats encode the rows as is.
func Rows(w io.Writer, format Format, key string, rows []map[string]any) error {
	if format != FormatTable {
		return Encode(w, format, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("(no rows)"))
		return err
	}

	headers := Columns(key, rows)
	body := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(headers))
		for j, h := range headers {
			v, ok := row[h]
			if !ok {
				cells[j] = ""
				continue
			}
			cells[j] = Cell(v)
		}
		body[i] = cells
	}

	_, err := fmt.Fprintln(w, Table(headers, body))
	return err
}

// Table renders a bordered table.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// Columns returns the union of row keys with key first, if present.
func Columns(key string, rows []map[string]any) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] && k != key {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	slices.Sort(cols)

	for _, row := range rows {
		if _, ok := row[key]; ok {
			return append([]string{key}, cols...)
		}
	}
	return cols
}

// Cell formats one value for table output.
func Cell(v any) string {
	switch x := Plain(v).(type) {
	case nil:
		return nullStyle.Render("NULL")
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case map[string]any, []any, []map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// Plain converts driver values into types every encoder understands:
// UUIDs become strings, byte slices become text and values with their own
// JSON form (such as pgtype.Numeric) are decoded from it.
func Plain(v any) any {
	switch x := v.(type) {
	case nil, string, bool, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	case uuid.UUID:
		return x.String()
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return string(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Plain(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Plain(e)
		}
		return out
	case json.Marshaler:
		b, err := x.MarshalJSON()
		if err != nil {
			return fmt.Sprint(x)
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return string(b)
		}
		return decoded
	case fmt.Stringer:
		return x.String()
	default:
		return x
	}
}
