package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePages struct {
	total    int64
	requests []int
	fail     error
}

func (f *fakePages) fetch(_ context.Context, page, perPage int) (*Page, error) {
	f.requests = append(f.requests, page)
	if f.fail != nil {
		return nil, f.fail
	}
	var rows []map[string]any
	start := int64((page - 1) * perPage)
	for i := start; i < min(start+int64(perPage), f.total); i++ {
		rows = append(rows, map[string]any{"id": i + 1, "name": nil})
	}
	pageCount := int((f.total + int64(perPage) - 1) / int64(perPage))
	return &Page{Rows: rows, Total: f.total, Page: page, PageCount: pageCount}, nil
}

// step applies msg and runs the returned command, feeding its message back.
func step(t *testing.T, m BrowseModel, msg tea.Msg) BrowseModel {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(BrowseModel)
	if cmd != nil {
		next, _ = m.Update(cmd())
		m = next.(BrowseModel)
	}
	return m
}

func load(t *testing.T, m BrowseModel) BrowseModel {
	t.Helper()
	next, _ := m.Update(m.Init()())
	return next.(BrowseModel)
}

func TestBrowse_Paging(t *testing.T) {
	pages := &fakePages{total: 25}
	m := load(t, NewBrowseModel(Source{
		Title:     "users",
		Key:       "id",
		PerPage:   10,
		Fetch:     pages.fetch,
		Statement: func() string { return "SELECT * FROM users LIMIT 10" },
	}))

	assert.Equal(t, 1, m.page)
	assert.Equal(t, 3, m.pageCount)
	assert.Len(t, m.table.Rows(), 10)
	assert.Equal(t, []string{"id", "name"}, []string{m.table.Columns()[0].Title, m.table.Columns()[1].Title})
	assert.Equal(t, "NULL", m.table.Rows()[0][1])
	assert.Contains(t, m.View(), "page 1 of 3")
	assert.Contains(t, m.View(), "SELECT * FROM users LIMIT 10")

	m = step(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = step(t, m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 3, m.page)
	assert.Len(t, m.table.Rows(), 5)
	assert.Equal(t, 2, m.pager.Page)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 3, m.page, "no page past the last")

	m = step(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, 2, m.page)
	assert.Equal(t, []int{1, 2, 3, 2}, pages.requests)
}

func TestBrowse_IgnoresKeysWhileLoading(t *testing.T) {
	pages := &fakePages{total: 25}
	m := load(t, NewBrowseModel(Source{Title: "users", PerPage: 10, Fetch: pages.fetch}))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRight})
	require.NotNil(t, cmd)
	m = next.(BrowseModel)

	_, second := m.Update(tea.KeyMsg{Type: tea.KeyRight})
	assert.Nil(t, second)
}

func TestBrowse_Error(t *testing.T) {
	pages := &fakePages{fail: errors.New("connection refused")}
	m := load(t, NewBrowseModel(Source{Title: "users", Fetch: pages.fetch}))

	assert.Equal(t, 20, m.src.PerPage)
	assert.Contains(t, m.View(), "connection refused")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestBrowse_Empty(t *testing.T) {
	m := load(t, NewBrowseModel(Source{Title: "users", Fetch: (&fakePages{}).fetch}))
	assert.Empty(t, m.table.Rows())
	assert.Contains(t, m.View(), "no rows")
}
