package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-record/cmd/pebble-record/output"
	"github.com/marshallshelly/pebble-record/pkg/registry"
)

// tablesCmd lists registered models
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables defined by the model files",
	Long: `List the tables defined under --models. No database connection is needed.

Examples:
  pebble-record tables --models ./internal/models
  pebble-record tables --models schema.yaml -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTables()
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

// tableSummary is the machine-readable form of one registered table.
type tableSummary struct {
	Table      string   `json:"table" yaml:"table"`
	PrimaryKey string   `json:"primary_key" yaml:"primary_key"`
	KeyType    string   `json:"key_type" yaml:"key_type"`
	Columns    []string `json:"columns" yaml:"columns"`
	Relations  []string `json:"relations" yaml:"relations"`
	Timestamps bool     `json:"timestamps" yaml:"timestamps"`
	SoftDelete bool     `json:"soft_delete" yaml:"soft_delete"`
}

func summarize(reg *registry.Registry) []tableSummary {
	var out []tableSummary
	for _, name := range reg.Names() {
		s, err := reg.Get(name)
		if err != nil {
			continue
		}
		rels := make([]string, len(s.Relations))
		for i, r := range s.Relations {
			rels[i] = fmt.Sprintf("%s %s %s(%s=%s)", r.Name, r.Kind, r.Table, r.ForeignKey, r.LocalKey)
		}
		out = append(out, tableSummary{
			Table:      s.Table,
			PrimaryKey: s.PrimaryKey,
			KeyType:    string(s.KeyStrategy),
			Columns:    s.ColumnNames(),
			Relations:  rels,
			Timestamps: s.Timestamps,
			SoftDelete: s.SoftDelete,
		})
	}
	return out
}

func runTables() error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	tables := summarize(reg)

	if format != output.FormatTable {
		return output.Encode(os.Stdout, format, tables)
	}

	output.Section(fmt.Sprintf("Tables (%d)", len(tables)))
	rows := make([][]string, len(tables))
	for i, t := range tables {
		rows[i] = []string{
			t.Table,
			t.PrimaryKey + " (" + t.KeyType + ")",
			strings.Join(t.Columns, ", "),
			strings.Join(t.Relations, "\n"),
			output.Flag(t.Timestamps),
			output.Flag(t.SoftDelete),
		}
	}
	fmt.Println(output.Table([]string{"table", "key", "columns", "relations", "timestamps", "soft delete"}, rows))
	return nil
}
