package dbclient

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbdeck/internal/domain"
)

func newMockHandle(t *testing.T, engine domain.Engine) (*sqlHandle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQLHandle(engine, string(engine), db), mock
}

func TestSQLHandle_ExecuteRead(t *testing.T) {
	h, mock := newMockHandle(t, domain.EnginePostgres)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "ada").
			AddRow(2, "grace"))

	res, err := h.Execute(context.Background(), "SELECT id, name FROM users")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.Len(t, res.Rows, res.RowCount, "rows length must equal rowCount for reads")
	assert.False(t, res.IsWrite)
	assert.EqualValues(t, 1, res.Rows[0]["id"])
	assert.Equal(t, "ada", res.Rows[0]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHandle_ExecuteRead_DuplicateColumnsPreserved(t *testing.T) {
	h, mock := newMockHandle(t, domain.EnginePostgres)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT a.id, b.id FROM a, b")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "id"}).AddRow(1, 2))

	res, err := h.Execute(context.Background(), "SELECT a.id, b.id FROM a, b")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "id"}, res.Columns, "duplicate column names must survive normalization")
	assert.Equal(t, 1, res.RowCount)
	// Within the row map the last duplicate wins.
	assert.EqualValues(t, 2, res.Rows[0]["id"])
}

func TestSQLHandle_ExecuteRead_Empty(t *testing.T) {
	h, mock := newMockHandle(t, domain.EngineMySQL)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM empty_table")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	res, err := h.Execute(context.Background(), "SELECT id FROM empty_table")
	require.NoError(t, err)
	assert.Equal(t, 0, res.RowCount)
	assert.Empty(t, res.Rows)
	assert.Equal(t, []string{"id"}, res.Columns)
}

func TestSQLHandle_ExecuteRead_PositionalParams(t *testing.T) {
	h, mock := newMockHandle(t, domain.EngineMySQL)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM users WHERE id = ?")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ada"))

	res, err := h.Execute(context.Background(), "SELECT name FROM users WHERE id = ?", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestSQLHandle_ExecuteWrite(t *testing.T) {
	h, mock := newMockHandle(t, domain.EngineMySQL)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = ?")).
		WithArgs(true).
		WillReturnResult(sqlmock.NewResult(0, 3))

	res, err := h.Execute(context.Background(), "UPDATE users SET active = ?", true)
	require.NoError(t, err)

	assert.True(t, res.IsWrite)
	assert.Equal(t, 3, res.RowCount, "writes report the driver's affected-row count")
	assert.Empty(t, res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHandle_QueryErrorPreservesRawText(t *testing.T) {
	h, mock := newMockHandle(t, domain.EngineMySQL)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM missing_table")).
		WillReturnError(errors.New("Error 1146: Table 'app.missing_table' doesn't exist"))

	_, err := h.Execute(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)

	var qErr *QueryError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, domain.EngineMySQL, qErr.Engine)
	assert.Contains(t, err.Error(), "doesn't exist")
}

func TestSQLHandle_WriteErrorIsQueryError(t *testing.T) {
	h, mock := newMockHandle(t, domain.EnginePostgres)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "users_pkey"`))

	_, err := h.Execute(context.Background(), "INSERT INTO users (id) VALUES (1)")
	require.Error(t, err)

	var qErr *QueryError
	require.True(t, errors.As(err, &qErr))
	assert.Contains(t, err.Error(), "users_pkey")
}

func TestSQLHandle_ApplyMutations_QuestionPlaceholders(t *testing.T) {
	h, mock := newMockHandle(t, domain.EngineMySQL)

	mock.ExpectBegin()
	// squirrel sorts SetMap/Eq keys, so the generated SQL is deterministic.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET name = ? WHERE id = ?")).
		WithArgs("grace", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = ?")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := h.ApplyMutations(context.Background(), "users", []Mutation{
		{Type: "update", RowKey: map[string]any{"id": 2}, Changes: map[string]any{"name": "grace"}},
		{Type: "delete", RowKey: map[string]any{"id": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Empty(t, res.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHandle_ApplyMutations_DollarPlaceholders(t *testing.T) {
	h, mock := newMockHandle(t, domain.EnginePostgres)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET name = $1 WHERE id = $2")).
		WithArgs("grace", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := h.ApplyMutations(context.Background(), "users", []Mutation{
		{Type: "update", RowKey: map[string]any{"id": 2}, Changes: map[string]any{"name": "grace"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHandle_ApplyMutations_BadTypeCollected(t *testing.T) {
	h, mock := newMockHandle(t, domain.EngineMySQL)

	mock.ExpectBegin()
	mock.ExpectCommit()

	res, err := h.ApplyMutations(context.Background(), "users", []Mutation{
		{Type: "upsert", RowKey: map[string]any{"id": 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "unknown mutation type")
}

func TestSQLHandle_CloseIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	h := newSQLHandle(domain.EngineSQLite, "sqlite", db)
	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close(), "closing an already-closed handle is not an error")
}

func TestIsReadQuery(t *testing.T) {
	reads := []string{
		"SELECT 1",
		"  select * from t",
		"WITH cte AS (SELECT 1) SELECT * FROM cte",
		"SHOW TABLES",
		"describe users",
		"EXPLAIN SELECT 1",
		"PRAGMA table_info('t')",
	}
	for _, q := range reads {
		assert.True(t, isReadQuery(q), q)
	}

	writes := []string{
		"INSERT INTO t VALUES (1)",
		"UPDATE t SET a = 1",
		"DELETE FROM t",
		"CREATE TABLE t (id INT)",
		"DROP TABLE t",
	}
	for _, q := range writes {
		assert.False(t, isReadQuery(q), q)
	}
}

func TestFormatValue(t *testing.T) {
	assert.Nil(t, formatValue(nil))
	assert.Equal(t, "blob", formatValue([]byte("blob")))
	assert.Equal(t, int64(42), formatValue(int64(42)))

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "2026-03-14T09:26:53Z", formatValue(ts))
}
