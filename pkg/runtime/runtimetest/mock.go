// Package runtimetest sets up pgxmock pools for unit tests of code that runs
// statements through runtime.DB.
package runtimetest

import (
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// New returns a mock pool that matches statements by their exact SQL text.
// Expectations left unmet fail the test when it finishes.
func New(t testing.TB) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return mock
}

// Rows builds a result set from column names and row values.
func Rows(columns []string, rows ...[]any) *pgxmock.Rows {
	r := pgxmock.NewRows(columns)
	for _, row := range rows {
		r.AddRow(row...)
	}
	return r
}
