package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "leads",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsert_MissingColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "leads",
		ConflictKeys: []string{"id"},
	}, [][]any{{"l1"}})
	assert.ErrorContains(t, err, "no columns")

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:   "leads",
		Columns: []string{"id"},
	}, [][]any{{"l1"}})
	assert.ErrorContains(t, err, "no conflict keys")
}

func TestBulkUpsert_FullFlow(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"id", "name", "website"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_leads"}, cols).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "leads" .* ON CONFLICT`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	// Deferred rollback after commit is a no-op.
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "leads",
		Columns:      cols,
		ConflictKeys: []string{"id"},
	}, [][]any{{"l1", "Acme Plumbing", "https://acmeplumbing.com"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
