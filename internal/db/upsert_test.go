package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCols = []string{"date", "nmid", "warehouse_id", "coef"}

func testUpsertConfig() UpsertConfig {
	return UpsertConfig{
		Table:        "tariff_data",
		Columns:      testCols,
		ConflictKeys: []string{"date", "nmid", "warehouse_id"},
	}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, testUpsertConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "tariff_data",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "tariff_data",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_UnknownConflictKey(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "tariff_data",
		Columns:      []string{"id"},
		ConflictKeys: []string{"missing"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `conflict key "missing"`)
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{"2024-01-15", int64(0), 1, 1.5},
		{"2024-01-15", int64(0), 2, 0.5},
		{"2024-01-15", int64(0), 1, 1.7},
	}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_tariff_data"}, testCols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "tariff_data" .* ON CONFLICT \("date", "nmid", "warehouse_id"\) DO UPDATE SET "coef" = EXCLUDED."coef"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, testUpsertConfig(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailsRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_tariff_data"}, testCols).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, testUpsertConfig(), [][]any{{"2024-01-15", int64(0), 1, 1.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_BeginFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	_, err = BulkUpsert(context.Background(), mock, testUpsertConfig(), [][]any{{"2024-01-15", int64(0), 1, 1.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestDedupeRows_LastWinsAtFirstPosition(t *testing.T) {
	rows := [][]any{
		{"a", 1, "first"},
		{"b", 1, "other"},
		{"a", 1, "second"},
		{"a", 2, "distinct"},
	}
	got := DedupeRows(rows, []int{0, 1})
	assert.Equal(t, [][]any{
		{"a", 1, "second"},
		{"b", 1, "other"},
		{"a", 2, "distinct"},
	}, got)
}

func TestTempTableName(t *testing.T) {
	assert.Equal(t, "_tmp_upsert_tariff_data", TempTableName("tariff_data"))
	assert.Equal(t, "_tmp_upsert_public_tariff_data", TempTableName("public.tariff_data"))
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"simple"`, sanitizeTable("simple"))
	assert.Equal(t, `"public"."tariff_data"`, sanitizeTable("public.tariff_data"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
