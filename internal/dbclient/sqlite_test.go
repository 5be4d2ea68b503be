package dbclient

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbdeck/internal/domain"
	"dbdeck/internal/vault"
)

func sqliteDescriptor(t *testing.T) *domain.ConnectionDescriptor {
	t.Helper()
	return &domain.ConnectionDescriptor{
		ID:     "sqlite-test",
		Name:   "sqlite test db",
		Engine: domain.EngineSQLite,
		Params: domain.ConnectionParams{
			Host: filepath.Join(t.TempDir(), "test.db"),
		},
	}
}

func openSQLiteHandle(t *testing.T) Handle {
	t.Helper()
	h, err := sqliteAdapter{}.Open(context.Background(), sqliteDescriptor(t), "")
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestSQLiteAdapter_SelectOne(t *testing.T) {
	h := openSQLiteHandle(t)

	res, err := h.Execute(context.Background(), "SELECT 1 as x")
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, res.Columns)
	assert.Equal(t, 1, res.RowCount)
	require.Len(t, res.Rows, 1)
	assert.EqualValues(t, 1, res.Rows[0]["x"])
}

func TestSQLiteAdapter_WriteAndReadBack(t *testing.T) {
	h := openSQLiteHandle(t)
	ctx := context.Background()

	_, err := h.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	res, err := h.Execute(ctx, "INSERT INTO users (id, name) VALUES (?, ?)", 1, "ada")
	require.NoError(t, err)
	assert.True(t, res.IsWrite)
	assert.Equal(t, 1, res.RowCount)
	assert.Empty(t, res.Rows)

	res, err = h.Execute(ctx, "SELECT id, name FROM users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	require.Equal(t, 1, res.RowCount)
	assert.EqualValues(t, 1, res.Rows[0]["id"])
	assert.Equal(t, "ada", res.Rows[0]["name"])

	res, err = h.Execute(ctx, "UPDATE users SET name = ? WHERE id = ?", "grace", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestSQLiteAdapter_QueryErrorKeepsHandleUsable(t *testing.T) {
	h := openSQLiteHandle(t)
	ctx := context.Background()

	_, err := h.Execute(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)

	var qErr *QueryError
	assert.True(t, errors.As(err, &qErr))
	assert.Contains(t, err.Error(), "missing_table")

	res, err := h.Execute(ctx, "SELECT 1 as x")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestSQLiteAdapter_Schema(t *testing.T) {
	h := openSQLiteHandle(t)
	ctx := context.Background()

	_, err := h.Execute(ctx, "CREATE TABLE albums (id INTEGER PRIMARY KEY, title TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = h.Execute(ctx, "CREATE TABLE plays (track TEXT, at DATETIME)")
	require.NoError(t, err)

	schema, err := h.Schema(ctx)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 2)

	albums := schema.Tables[0]
	assert.Equal(t, "albums", albums.Name)
	require.Len(t, albums.Columns, 2)
	assert.Equal(t, "id", albums.Columns[0].Name)
	assert.Equal(t, []string{"id"}, albums.PrimaryKeys)

	plays := schema.Tables[1]
	assert.Equal(t, "plays", plays.Name)
	assert.Equal(t, []string{"rowid"}, plays.PrimaryKeys, "tables without a declared PK fall back to rowid")
}

func TestSQLiteAdapter_ApplyMutations(t *testing.T) {
	h := openSQLiteHandle(t)
	ctx := context.Background()

	_, err := h.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	for i, name := range []string{"ada", "grace", "edsger"} {
		_, err = h.Execute(ctx, "INSERT INTO users (id, name) VALUES (?, ?)", i+1, name)
		require.NoError(t, err)
	}

	res, err := h.ApplyMutations(ctx, "users", []Mutation{
		{Type: "update", RowKey: map[string]any{"id": 1}, Changes: map[string]any{"name": "lovelace"}},
		{Type: "delete", RowKey: map[string]any{"id": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Empty(t, res.Errors)

	got, err := h.Execute(ctx, "SELECT name FROM users ORDER BY id")
	require.NoError(t, err)
	require.Equal(t, 2, got.RowCount)
	assert.Equal(t, "lovelace", got.Rows[0]["name"])
	assert.Equal(t, "grace", got.Rows[1]["name"])
}

func TestSQLiteAdapter_SingleConnection(t *testing.T) {
	h := openSQLiteHandle(t)

	sh, ok := h.(*sqlHandle)
	require.True(t, ok)
	assert.Equal(t, 1, sh.db.Stats().MaxOpenConnections, "sqlite queries must serialize on one connection")
}

func TestSQLiteAdapter_TestConnect(t *testing.T) {
	desc := sqliteDescriptor(t)
	assert.NoError(t, sqliteAdapter{}.TestConnect(context.Background(), desc, ""))

	bad := &domain.ConnectionDescriptor{
		ID:     "bad",
		Engine: domain.EngineSQLite,
		Params: domain.ConnectionParams{Host: "/nonexistent-dir/sub/never.db"},
	}
	err := sqliteAdapter{}.TestConnect(context.Background(), bad, "")
	require.Error(t, err)

	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr))
}

func TestExecutor_SQLiteEndToEnd(t *testing.T) {
	v, err := vault.New(make([]byte, 32))
	require.NoError(t, err)
	reg := NewRegistry(v, DefaultAdapters())
	defer reg.CloseAll()
	exec := NewExecutor(reg)

	desc := sqliteDescriptor(t)
	// A protected password rides along unused by the sqlite adapter; the
	// descriptor keeps holding ciphertext the whole way.
	desc.Params.Password, err = v.Protect("irrelevant")
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), desc, "SELECT 1 as x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, res.Columns)
	assert.Equal(t, 1, res.RowCount)
	assert.EqualValues(t, 1, res.Rows[0]["x"])

	active := reg.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, desc.ID, active[0].ID)
	assert.Contains(t, active[0].Params.Password, vault.Prefix)

	require.NoError(t, reg.Disconnect(desc))
	assert.Empty(t, reg.ListActive())
}
