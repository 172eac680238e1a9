package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marshallshelly/pebble-record/cmd/pebble-record/output"
)

const maxColumnWidth = 32

// Page is one page of rows shown by the browser.
type Page struct {
	Rows      []map[string]any
	Total     int64
	Page      int
	PageCount int
}

// Source describes what the browser pages through.
type Source struct {
	Title   string
	Key     string
	PerPage int
	Fetch   func(ctx context.Context, page, perPage int) (*Page, error)

	// Statement, when set, returns the SQL of the last fetch.
	Statement func() string
}

// BrowseModel is the Bubbletea model for paging through a table.
type BrowseModel struct {
	src       Source
	table     table.Model
	pager     paginator.Model
	page      int
	pageCount int
	total     int64
	loading   bool
	sql       string
	err       error
	width     int
	height    int
}

type pageLoadedMsg struct {
	page *Page
	sql  string
}

type errorMsg struct {
	err error
}

// NewBrowseModel creates a browser positioned before the first page.
func NewBrowseModel(src Source) BrowseModel {
	if src.PerPage < 1 {
		src.PerPage = 20
	}

	t := table.New(
		table.WithFocused(true),
		table.WithHeight(src.PerPage),
		table.WithStyles(tableStyles()),
	)

	p := paginator.New()
	p.Type = paginator.Dots
	p.PerPage = src.PerPage
	p.ActiveDot = titleStyle.Render("•")
	p.InactiveDot = mutedStyle.Render("•")

	return BrowseModel{src: src, table: t, pager: p, loading: true}
}

// Init fetches the first page.
func (m BrowseModel) Init() tea.Cmd {
	return m.fetch(1)
}

func (m BrowseModel) fetch(page int) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		p, err := src.Fetch(context.Background(), page, src.PerPage)
		if err != nil {
			return errorMsg{err: err}
		}
		var sql string
		if src.Statement != nil {
			sql = src.Statement()
		}
		return pageLoadedMsg{page: p, sql: sql}
	}
}

// Update handles messages
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(msg.Width-4, 20))
		m.table.SetHeight(max(min(msg.Height-10, m.src.PerPage), 3))
		return m, nil

	case pageLoadedMsg:
		m.loading = false
		m.err = nil
		m.sql = msg.sql
		m.setPage(msg.page)
		return m, nil

	case errorMsg:
		m.loading = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "right", "l", "n":
			if m.loading || m.err != nil || m.page >= m.pageCount {
				return m, nil
			}
			m.loading = true
			return m, m.fetch(m.page + 1)
		case "left", "h", "p":
			if m.loading || m.err != nil || m.page <= 1 {
				return m, nil
			}
			m.loading = true
			return m, m.fetch(m.page - 1)
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, m.fetch(max(m.page, 1))
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *BrowseModel) setPage(p *Page) {
	m.page = p.Page
	m.pageCount = p.PageCount
	m.total = p.Total

	headers := output.Columns(m.src.Key, p.Rows)
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}

	rows := make([]table.Row, len(p.Rows))
	for r, row := range p.Rows {
		cells := make(table.Row, len(headers))
		for i, h := range headers {
			cells[i] = cellText(row[h])
			widths[i] = max(widths[i], min(lipgloss.Width(cells[i]), maxColumnWidth))
		}
		rows[r] = cells
	}

	columns := make([]table.Column, len(headers))
	for i, h := range headers {
		columns[i] = table.Column{Title: h, Width: widths[i]}
	}

	// Rows must never be wider than the columns while either is replaced.
	m.table.SetRows(nil)
	m.table.SetColumns(columns)
	m.table.SetRows(rows)
	m.table.SetCursor(0)

	m.pager.SetTotalPages(int(p.Total))
	m.pager.Page = max(p.Page-1, 0)
}

func cellText(v any) string {
	if v == nil {
		return "NULL"
	}
	return strings.ReplaceAll(output.Cell(v), "\n", " ")
}

// View renders the UI
func (m BrowseModel) View() string {
	help := helpStyle.Render(
		FormatKey("↑/↓", "rows") + " • " +
			FormatKey("←/→", "pages") + " • " +
			FormatKey("r", "reload") + " • " +
			FormatKey("q", "quit"),
	)

	if m.err != nil {
		msg := titleStyle.Render("Browse failed") + "\n\n" +
			errorStyle.Render(m.err.Error()) + "\n" +
			help
		return boxStyle.Render(msg)
	}

	if m.pageCount == 0 && m.loading {
		return infoStyle.Render("Loading " + m.src.Title + "…")
	}

	header := titleStyle.Render(m.src.Title) + " " +
		subtitleStyle.Render(fmt.Sprintf("%d rows", m.total))

	status := mutedStyle.Render(fmt.Sprintf("page %d of %d", m.page, m.pageCount))
	if m.pageCount == 0 {
		status = mutedStyle.Render("no rows")
	}
	if m.loading {
		status += " " + infoStyle.Render("loading…")
	}

	parts := []string{
		header,
		boxStyle.Padding(0, 1).Render(m.table.View()),
		lipgloss.JoinHorizontal(lipgloss.Center, m.pager.View(), "  ", status),
	}
	if m.sql != "" {
		parts = append(parts, codeStyle.Render(m.sql))
	}
	parts = append(parts, help)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// RunBrowseUI starts the interactive browser.
func RunBrowseUI(src Source) error {
	p := tea.NewProgram(NewBrowseModel(src), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
