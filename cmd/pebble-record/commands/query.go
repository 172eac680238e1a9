package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-record/cmd/pebble-record/output"
	"github.com/marshallshelly/pebble-record/pkg/builder"
)

var (
	queryFilters    filters
	countFilters    filters
	paginateFilters filters

	limit   int
	offset  int
	page    int
	perPage int
)

// queryCmd runs a filtered SELECT
var queryCmd = &cobra.Command{
	Use:   "query <table>",
	Short: "Query rows of a table",
	Long: `Query rows of a registered table.

Examples:
  pebble-record query users --where "name:like:J%" --order created_at:desc --limit 10
  pebble-record query users --where "id:in:1,2,3" --with posts -o json
  pebble-record query posts --only-trashed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, args[0])
	},
}

// findCmd loads one row by primary key
var findCmd = &cobra.Command{
	Use:   "find <table> <id>",
	Short: "Find a row by primary key",
	Long: `Find a row by primary key. Soft-deleted rows are found too.

Examples:
  pebble-record find users 42 --with posts,profile`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFind(cmd, args[0], args[1])
	},
}

// countCmd counts matching rows
var countCmd = &cobra.Command{
	Use:   "count <table>",
	Short: "Count rows of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCount(cmd, args[0])
	},
}

// paginateCmd fetches one page with totals
var paginateCmd = &cobra.Command{
	Use:   "paginate <table>",
	Short: "Fetch one page of rows with the total count",
	Long: `Fetch one page of rows together with the total row count.

Examples:
  pebble-record paginate users --page 2 --per-page 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPaginate(cmd, args[0])
	},
}

var findWith []string

func init() {
	rootCmd.AddCommand(queryCmd, findCmd, countCmd, paginateCmd)

	queryFilters.register(queryCmd)
	queryCmd.Flags().IntVar(&limit, "limit", -1, "Maximum number of rows")
	queryCmd.Flags().IntVar(&offset, "offset", -1, "Rows to skip")

	findCmd.Flags().StringSliceVar(&findWith, "with", nil, "Relations to eager load (comma separated)")

	countFilters.register(countCmd)

	paginateFilters.register(paginateCmd)
	paginateCmd.Flags().IntVar(&page, "page", 1, "Page number (1-based)")
	paginateCmd.Flags().IntVar(&perPage, "per-page", 20, "Rows per page")
}

func runQuery(cmd *cobra.Command, table string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.model(table)
	if err != nil {
		return err
	}
	q, err := queryFilters.build(m.Query())
	if err != nil {
		return err
	}
	if limit >= 0 {
		q = q.Limit(limit)
	}
	if offset >= 0 {
		q = q.Offset(offset)
	}

	records, err := q.Get(cmd.Context())
	if err != nil {
		return err
	}
	return writeRecords(m, records)
}

func runFind(cmd *cobra.Command, table, rawID string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.model(table)
	if err != nil {
		return err
	}
	r, err := m.FindOrFail(cmd.Context(), parseValue(rawID))
	if err != nil {
		return err
	}
	for _, rel := range findWith {
		if err := r.Load(cmd.Context(), rel); err != nil {
			return err
		}
	}
	return writeRecords(m, []*builder.Record{r})
}

func runCount(cmd *cobra.Command, table string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.model(table)
	if err != nil {
		return err
	}
	q, err := countFilters.build(m.Query())
	if err != nil {
		return err
	}
	n, err := q.Count(cmd.Context())
	if err != nil {
		return err
	}

	if format == output.FormatTable {
		output.Info("%s: %d row(s)", table, n)
		return nil
	}
	return output.Encode(os.Stdout, format, map[string]any{"table": table, "count": n})
}

func runPaginate(cmd *cobra.Command, table string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.model(table)
	if err != nil {
		return err
	}
	q, err := paginateFilters.build(m.Query())
	if err != nil {
		return err
	}
	p, err := q.Paginate(cmd.Context(), page, perPage)
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.Encode(os.Stdout, format, map[string]any{
			"data":       builder.CollectionToMaps(p.Data),
			"total":      p.Total,
			"page":       p.Page,
			"page_count": p.PageCount,
			"per_page":   p.PerPage,
		})
	}
	if err := writeRecords(m, p.Data); err != nil {
		return err
	}
	output.Muted("page %d of %d • %d row(s) total • %d per page", p.Page, p.PageCount, p.Total, p.PerPage)
	return nil
}

func writeRecords(m *builder.Model, records []*builder.Record) error {
	if err := output.Rows(os.Stdout, format, m.Schema().PrimaryKey, builder.CollectionToMaps(records)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
