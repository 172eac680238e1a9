package builder

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-record/pkg/runtime"
	"github.com/marshallshelly/pebble-record/pkg/runtime/runtimetest"
)

func userRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int64(i + 1), "user"}
	}
	return rows
}

func TestQuery_Paginate(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("SELECT COUNT(*) FROM users").
		WillReturnRows(runtimetest.Rows([]string{"count"}, []any{int64(25)}))
	f.mock.ExpectQuery("SELECT * FROM users ORDER BY id ASC LIMIT 10 OFFSET 10").
		WillReturnRows(runtimetest.Rows([]string{"id", "name"}, userRows(10)...))

	page, err := f.users.Query().OrderBy("id", "asc").Paginate(context.Background(), 2, 10)
	require.NoError(t, err)

	assert.Len(t, page.Data, 10)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 3, page.PageCount)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.PerPage)
}

func TestQuery_PaginateConcurrent(t *testing.T) {
	f := setup(t)
	f.db.db = runtime.NewDBFromQuerier(f.mock, runtime.WithConcurrentStatements(true))
	f.mock.MatchExpectationsInOrder(false)
	f.mock.ExpectQuery("SELECT * FROM users LIMIT 5 OFFSET 0").
		WillReturnRows(runtimetest.Rows([]string{"id", "name"}, userRows(5)...))
	f.mock.ExpectQuery("SELECT COUNT(*) FROM users").
		WillReturnRows(runtimetest.Rows([]string{"count"}, []any{int64(7)}))

	page, err := f.users.Query().Paginate(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 2, page.PageCount)
}

func TestQuery_PaginateSequentialStopsOnCountError(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("SELECT COUNT(*) FROM users").
		WillReturnError(assert.AnError)

	_, err := f.users.Query().Paginate(context.Background(), 1, 5)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestQuery_PaginateClamps(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("SELECT COUNT(*) FROM users").
		WillReturnRows(runtimetest.Rows([]string{"count"}, []any{int64(0)}))
	f.mock.ExpectQuery("SELECT * FROM users LIMIT 1 OFFSET 0").
		WillReturnRows(runtimetest.Rows([]string{"id"}))

	page, err := f.users.Query().Paginate(context.Background(), 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.PerPage)
	assert.Equal(t, 0, page.PageCount)
	assert.Empty(t, page.Data)
}

func TestQuery_PaginateCountsWithoutJoins(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("SELECT COUNT(*) FROM users WHERE users.name = @p1").
		WithArgs(pgx.NamedArgs{"p1": "x"}).
		WillReturnRows(runtimetest.Rows([]string{"count"}, []any{int64(1)}))
	f.mock.ExpectQuery("SELECT * FROM users LEFT JOIN posts ON posts.user_id = users.id WHERE users.name = @p1 LIMIT 10 OFFSET 0").
		WithArgs(pgx.NamedArgs{"p1": "x"}).
		WillReturnRows(runtimetest.Rows([]string{"id", "name"}, []any{int64(1), "x"}, []any{int64(1), "x"}))

	page, err := f.users.LeftJoin("posts", "posts.user_id", "=", "users.id").
		Where("users.name", "=", "x").
		Paginate(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total, "joined rows do not inflate the total")
	assert.Equal(t, 1, page.PageCount)
}

func TestPage_JSON(t *testing.T) {
	f := setup(t)
	page := &Page{
		Data:      []*Record{newRecord(f.users, map[string]any{"id": 1}, true)},
		Total:     1,
		Page:      1,
		PageCount: 1,
		PerPage:   10,
	}

	b, err := json.Marshal(page)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":1}],"total":1,"page":1,"page_count":1,"per_page":10}`, string(b))
}

func TestQuery_CountIgnoresShape(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("SELECT COUNT(*) FROM posts WHERE title LIKE @p1 AND posts.deleted_at IS NULL").
		WithArgs(pgx.NamedArgs{"p1": "a%"}).
		WillReturnRows(runtimetest.Rows([]string{"count"}, []any{int64(4)}))

	n, err := f.posts.LeftJoin("users", "users.id", "=", "posts.user_id").
		Where("title", "like", "a%").
		OrderBy("title", "").
		Limit(2).
		Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestQuery_Exists(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("SELECT EXISTS (SELECT 1 FROM users WHERE email = @p1)").
		WithArgs(pgx.NamedArgs{"p1": "a@b.co"}).
		WillReturnRows(runtimetest.Rows([]string{"exists"}, []any{true}))
	f.mock.ExpectQuery("SELECT EXISTS (SELECT 1 FROM users WHERE email = @p1)").
		WithArgs(pgx.NamedArgs{"p1": "c@d.co"}).
		WillReturnRows(runtimetest.Rows([]string{"exists"}, []any{false}))
	ctx := context.Background()

	ok, err := f.users.Where("email", "=", "a@b.co").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.users.LeftJoin("posts", "posts.user_id", "=", "users.id").Where("email", "=", "c@d.co").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.users.Where("missing", "=", 1).Exists(ctx)
	assert.Error(t, err)
}

func TestQuery_Pluck(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("SELECT name FROM users ORDER BY name ASC LIMIT 2").
		WillReturnRows(runtimetest.Rows([]string{"name"}, []any{"a"}, []any{"b"}))
	f.mock.ExpectQuery("SELECT name FROM users LIMIT 1").
		WillReturnRows(runtimetest.Rows([]string{"name"}, []any{"a"}))

	names, err := f.users.Query().OrderBy("name", "asc").Limit(2).Pluck(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, names)

	first, err := f.users.Query().FirstPluck(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "a", first)

	_, err = f.users.Query().Pluck(context.Background(), "name, password")
	assert.Error(t, err)
}

func TestQuery_PluckUUID(t *testing.T) {
	f := setup(t)
	id := uuid.MustParse("8f14e45f-ceea-467f-a0e5-6f2c5b8b6b11")
	f.mock.ExpectQuery("SELECT id FROM users").
		WillReturnRows(runtimetest.Rows([]string{"id"}, []any{[16]byte(id)}))

	ids, err := f.users.Query().Pluck(context.Background(), "id")
	require.NoError(t, err)
	assert.Equal(t, []any{id}, ids)
}

func TestQuery_FirstEmpty(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("SELECT * FROM users WHERE name = @p1 LIMIT 1").
		WithArgs(pgx.NamedArgs{"p1": "nobody"}).
		WillReturnRows(runtimetest.Rows([]string{"id"}))
	f.mock.ExpectQuery("SELECT email FROM users LIMIT 1").
		WillReturnRows(runtimetest.Rows([]string{"email"}))

	r, err := f.users.Where("name", "=", "nobody").First(context.Background())
	require.NoError(t, err)
	assert.Nil(t, r)

	v, err := f.users.Query().FirstPluck(context.Background(), "email")
	require.NoError(t, err)
	assert.Nil(t, v)
}
