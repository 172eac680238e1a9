package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-record/cmd/pebble-record/tui"
	"github.com/marshallshelly/pebble-record/pkg/builder"
	"github.com/marshallshelly/pebble-record/pkg/runtime"
)

var (
	browseFilters filters
	browsePerPage int
)

// browseCmd pages through a table interactively
var browseCmd = &cobra.Command{
	Use:   "browse <table>",
	Short: "Browse a table interactively",
	Long: `Page through a table in an interactive terminal UI.

Examples:
  pebble-record browse users --per-page 25
  pebble-record browse posts --where "user_id:=:7" --with-trashed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBrowse(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
	browseFilters.register(browseCmd)
	browseCmd.Flags().IntVar(&browsePerPage, "per-page", 20, "Rows per page")
}

func runBrowse(cmd *cobra.Command, table string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.model(table)
	if err != nil {
		return err
	}
	q, err := browseFilters.build(m.Query())
	if err != nil {
		return err
	}

	// The statement line needs the query log even without --debug.
	s.rt.EnableDebug(true)
	if !debug {
		defer s.rt.FlushQueryLog()
	}

	return tui.RunBrowseUI(tui.Source{
		Title:   table,
		Key:     m.Schema().PrimaryKey,
		PerPage: browsePerPage,
		Fetch: func(ctx context.Context, page, perPage int) (*tui.Page, error) {
			p, err := q.Paginate(ctx, page, perPage)
			if err != nil {
				return nil, err
			}
			return pageOf(p), nil
		},
		Statement: func() string {
			return lastDataStatement(s.rt.QueryLog())
		},
	})
}

// lastDataStatement skips the COUNT that Paginate runs alongside the page query.
func lastDataStatement(entries []runtime.QueryLogEntry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if !strings.HasPrefix(entries[i].SQL, "SELECT COUNT(*)") {
			return entries[i].SQL
		}
	}
	return ""
}

func pageOf(p *builder.Page) *tui.Page {
	return &tui.Page{
		Rows:      builder.CollectionToMaps(p.Data),
		Total:     p.Total,
		Page:      p.Page,
		PageCount: p.PageCount,
	}
}
