package builder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-record/pkg/registry"
	"github.com/marshallshelly/pebble-record/pkg/runtime"
	"github.com/marshallshelly/pebble-record/pkg/runtime/runtimetest"
	"github.com/marshallshelly/pebble-record/pkg/schema"
	"github.com/marshallshelly/pebble-record/pkg/validation"
)

func TestRecord_SaveInsertsThenUpdates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.mock.ExpectQuery("INSERT INTO users (created_at, email, name, updated_at) VALUES (@p1, @p2, @p3, @p4) RETURNING id").
		WithArgs(pgx.NamedArgs{"p1": fixedNow, "p2": "jane@example.com", "p3": "Jane", "p4": fixedNow}).
		WillReturnRows(runtimetest.Rows([]string{"id"}, []any{int64(7)}))
	f.mock.ExpectExec("UPDATE users SET created_at = @p1, email = @p2, name = @p3, updated_at = @p4 WHERE id = @pk").
		WithArgs(pgx.NamedArgs{"p1": fixedNow, "p2": "jane@example.com", "p3": "Janet", "p4": fixedNow, "pk": int64(7)}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	r := f.users.New(map[string]any{"name": "Jane", "email": "jane@example.com"})
	assert.False(t, r.Exists())
	require.NoError(t, r.Save(ctx))

	assert.True(t, r.Exists())
	assert.Equal(t, int64(7), r.Key())
	assert.Equal(t, fixedNow, r.Get("created_at"))
	assert.False(t, r.IsDirty())

	r.Set("name", "Janet")
	assert.True(t, r.IsDirty("name"))
	assert.False(t, r.IsDirty("email"))
	require.NoError(t, r.Save(ctx))
}

func TestRecord_SaveWithAssignedKeyUpdates(t *testing.T) {
	f := setup(t)
	f.mock.ExpectExec("UPDATE users SET email = @p1, name = @p2, updated_at = @p3 WHERE id = @pk").
		WithArgs(pgx.NamedArgs{"p1": "jane@example.com", "p2": "Jane", "p3": fixedNow, "pk": int64(9)}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	r := f.users.New(map[string]any{"name": "Jane", "email": "jane@example.com"})
	r.Set("id", int64(9))
	require.NoError(t, r.Save(context.Background()))
	assert.True(t, r.Exists())
	assert.Equal(t, int64(9), r.Key())
}

func TestRecord_FillRespectsGuarded(t *testing.T) {
	f := setup(t)

	r := f.users.New(map[string]any{"id": 5, "name": "x", "admin": true})
	assert.Nil(t, r.Get("id"))
	assert.Equal(t, "x", r.Get("name"))
	assert.Nil(t, r.Get("admin"))
	assert.False(t, r.IsFillable("id"))
	assert.True(t, r.IsFillable("email"))
}

func TestRecord_UUIDKey(t *testing.T) {
	mock := runtimetest.New(t)
	db := New(runtime.NewDBFromQuerier(mock), registry.NewRegistry())
	tokens, err := db.Define(&schema.Schema{Table: "api_tokens", KeyStrategy: schema.KeyUUID})
	require.NoError(t, err)

	stored := uuid.MustParse("b59d1d27-3c1a-4c53-9d4e-2f7a3c1e9a10")
	mock.ExpectQuery("INSERT INTO api_tokens (id, name) VALUES (@p1, @p2) RETURNING id").
		WithArgs(pgx.NamedArgs{"p1": pgxmock.AnyArg(), "p2": "ci"}).
		WillReturnRows(runtimetest.Rows([]string{"id"}, []any{[16]byte(stored)}))
	mock.ExpectQuery("SELECT * FROM api_tokens WHERE id = @p1 LIMIT 1").
		WithArgs(pgx.NamedArgs{"p1": stored}).
		WillReturnRows(runtimetest.Rows([]string{"id", "name"}, []any{[16]byte(stored), "ci"}))
	ctx := context.Background()

	r := tokens.New(map[string]any{"name": "ci"})
	require.NoError(t, r.Save(ctx))

	id, ok := r.Key().(uuid.UUID)
	require.True(t, ok, "expected uuid key, got %T", r.Key())
	assert.Equal(t, stored, id)

	js, err := r.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b59d1d27-3c1a-4c53-9d4e-2f7a3c1e9a10","name":"ci"}`, js)

	found, err := tokens.FindOrFail(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, stored, found.Key())
}

func TestRecord_Hooks(t *testing.T) {
	var events []string
	f := setup(t, WithHooks(Hooks{
		BeforeSave: func(_ context.Context, r *Record) error {
			events = append(events, "before")
			r.Set("name", strings.ToUpper(r.Get("name").(string)))
			return nil
		},
		AfterSave: func(_ context.Context, r *Record) error {
			events = append(events, "after")
			return nil
		},
		BeforeDelete: func(context.Context, *Record) error {
			return errors.New("users cannot be deleted")
		},
	}))
	ctx := context.Background()
	f.mock.ExpectQuery("INSERT INTO users (created_at, name, updated_at) VALUES (@p1, @p2, @p3) RETURNING id").
		WithArgs(pgx.NamedArgs{"p1": fixedNow, "p2": "JANE", "p3": fixedNow}).
		WillReturnRows(runtimetest.Rows([]string{"id"}, []any{int64(1)}))

	r := f.users.New(map[string]any{"name": "jane"})
	require.NoError(t, r.Save(ctx))
	assert.Equal(t, []string{"before", "after"}, events)

	err := r.Delete(ctx)
	assert.EqualError(t, err, "users cannot be deleted")
}

func TestRecord_SoftDeleteAndRestore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cols := []string{"id", "user_id", "title", "deleted_at"}
	f.mock.ExpectQuery("SELECT * FROM posts WHERE id = @p1 LIMIT 1").
		WithArgs(pgx.NamedArgs{"p1": 3}).
		WillReturnRows(runtimetest.Rows(cols, []any{int64(3), int64(1), "hello", nil}))
	f.mock.ExpectExec("UPDATE posts SET deleted_at = @deleted_at WHERE id = @pk").
		WithArgs(pgx.NamedArgs{"deleted_at": fixedNow, "pk": int64(3)}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectQuery("SELECT * FROM posts WHERE id = @p1 LIMIT 1").
		WithArgs(pgx.NamedArgs{"p1": 3}).
		WillReturnRows(runtimetest.Rows(cols, []any{int64(3), int64(1), "hello", fixedNow}))
	f.mock.ExpectQuery("SELECT * FROM posts WHERE posts.deleted_at IS NULL").
		WillReturnRows(runtimetest.Rows(cols))
	f.mock.ExpectExec("UPDATE posts SET deleted_at = NULL WHERE id = @pk").
		WithArgs(pgx.NamedArgs{"pk": int64(3)}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	post, err := f.posts.Find(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.False(t, post.Trashed())

	require.NoError(t, post.Delete(ctx))
	assert.True(t, post.Trashed())
	assert.Equal(t, fixedNow, post.Get("deleted_at"))

	trashed, err := f.posts.Find(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, trashed, "Find ignores the soft-delete scope")
	assert.True(t, trashed.Trashed())

	live, err := f.posts.Query().Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)

	require.NoError(t, post.Restore(ctx))
	assert.False(t, post.Trashed())
}

func TestRecord_ForceDelete(t *testing.T) {
	f := setup(t)
	f.mock.ExpectExec("DELETE FROM posts WHERE id = @pk").
		WithArgs(pgx.NamedArgs{"pk": int64(9)}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	post := newRecord(f.posts, map[string]any{"id": int64(9), "title": "x"}, true)
	require.NoError(t, post.ForceDelete(context.Background()))
	assert.False(t, post.Exists())
}

func TestRecord_FeatureDisabledAndTransient(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	user := newRecord(f.users, map[string]any{"id": int64(1)}, true)
	var disabled *runtime.FeatureDisabledError
	assert.ErrorAs(t, user.Restore(ctx), &disabled)
	assert.ErrorAs(t, user.SoftDelete(ctx), &disabled)

	transient := f.posts.New(map[string]any{"title": "draft"})
	assert.ErrorIs(t, transient.Delete(ctx), runtime.ErrNoPrimaryKey)
	assert.ErrorIs(t, transient.ForceDelete(ctx), runtime.ErrNoPrimaryKey)
	assert.ErrorIs(t, transient.Restore(ctx), runtime.ErrNoPrimaryKey)
}

func TestRecord_StatementErrorPropagates(t *testing.T) {
	f := setup(t)
	f.mock.ExpectQuery("INSERT INTO users (created_at, name, updated_at) VALUES (@p1, @p2, @p3) RETURNING id").
		WithArgs(pgx.NamedArgs{"p1": fixedNow, "p2": "jane", "p3": fixedNow}).
		WillReturnError(errors.New("duplicate key value"))

	r := f.users.New(map[string]any{"name": "jane"})
	err := r.Save(context.Background())

	var stmtErr *runtime.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Contains(t, stmtErr.Query, "INSERT INTO users")
	assert.False(t, r.Exists())
}

func TestModel_CreateAndUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.mock.ExpectQuery("INSERT INTO users (email, name) VALUES (@p1, @p2) RETURNING id").
		WithArgs(pgx.NamedArgs{"p1": "a@b.co", "p2": "a"}).
		WillReturnRows(runtimetest.Rows([]string{"id"}, []any{int64(42)}))
	f.mock.ExpectExec("UPDATE users SET name = @p1 WHERE id = @pk").
		WithArgs(pgx.NamedArgs{"p1": "b", "pk": 42}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	id, err := f.users.Create(ctx, map[string]any{"name": "a", "email": "a@b.co"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	n, err := f.users.Update(ctx, 42, map[string]any{"name": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.users.Create(ctx, map[string]any{"name; DROP TABLE users": "x"})
	assert.ErrorIs(t, err, schema.ErrInvalidIdentifier)
}

func TestModel_FindOrFail(t *testing.T) {
	f := setup(t)
	for range 2 {
		f.mock.ExpectQuery("SELECT * FROM users WHERE id = @p1 LIMIT 1").
			WithArgs(pgx.NamedArgs{"p1": 404}).
			WillReturnRows(runtimetest.Rows([]string{"id"}))
	}

	r, err := f.users.Find(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = f.users.FindOrFail(context.Background(), 404)
	assert.ErrorIs(t, err, runtime.ErrNotFound)
}

func TestRecord_Validate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for range 2 {
		f.mock.ExpectQuery("SELECT COUNT(*) FROM users WHERE email = @p1 AND id != @p2").
			WithArgs(pgx.NamedArgs{"p1": "taken@example.com", "p2": int64(5)}).
			WillReturnRows(runtimetest.Rows([]string{"count"}, []any{int64(1)}))
	}

	r := newRecord(f.users, map[string]any{"id": int64(5), "name": "ab", "email": "taken@example.com"}, true)
	ok, err := r.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	errs := r.Errors()
	assert.Equal(t, []string{"name must be at least 3 characters."}, errs["name"])
	assert.Equal(t, []string{"email is already taken."}, errs["email"])

	r.Set("name", 5)
	ok, err = r.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "email is still taken")
	assert.False(t, r.Errors().Has("name"), "errors are cleared between runs")
}

func TestRecord_ValidateCallback(t *testing.T) {
	f := setup(t, WithCallback("notReserved", func(_ context.Context, field string, value any) (string, error) {
		if value == "root" {
			return field + " is reserved.", nil
		}
		return "", nil
	}))
	f.users.schema.Rules = map[string][]string{"name": {"callback:notReserved"}}

	r := f.users.New(map[string]any{"name": "root"})
	ok, err := r.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "name is reserved.", r.Errors().First("name"))

	f.users.schema.Rules = map[string][]string{"name": {"callback:missing"}}
	_, err = r.Validate(context.Background())
	var ruleErr *validation.InvalidRuleError
	assert.ErrorAs(t, err, &ruleErr)
}

func TestRecord_ToJSON(t *testing.T) {
	f := setup(t)

	user := newRecord(f.users, map[string]any{"id": 1, "name": "a"}, true)
	user.relations["posts"] = []*Record{newRecord(f.posts, map[string]any{"id": 10, "title": "p"}, true)}
	user.relations["profile"] = (*Record)(nil)

	js, err := user.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"a","posts":[{"id":10,"title":"p"}],"profile":null}`, js)

	all, err := CollectionToJSON([]*Record{user})
	require.NoError(t, err)
	assert.JSONEq(t, `[`+js+`]`, all)
}
