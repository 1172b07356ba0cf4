package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "ops_data.technicians",
		Columns:      []string{"st_id", "name"},
		ConflictKeys: []string{"st_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_RequiresColumnsAndKeys(t *testing.T) {
	rows := [][]any{{1, "x"}}

	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "t", Columns: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_ops_data_technicians"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_ops_data_technicians"}, []string{"st_id", "name", "hourly_rate"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "ops_data"."technicians"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{int64(1), "A", nil}, {int64(2), "B", nil}}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "ops_data.technicians",
		Columns:      []string{"st_id", "name", "hourly_rate"},
		ConflictKeys: []string{"st_id"},
		UpdateCols:   []string{"name"},
	}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_jobs"}, []string{"st_job_id"}).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "jobs",
		Columns:      []string{"st_job_id"},
		ConflictKeys: []string{"st_job_id"},
	}, [][]any{{int64(1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}
