package store

import (
	"context"
	"embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/db"
	"github.com/sells-group/tariff-sync/internal/metrics"
	"github.com/sells-group/tariff-sync/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const tariffTable = "tariff_data"

var tariffColumns = []string{
	"date", "nmid", "box_type_name", "size", "warehouse_id", "warehouse_name",
	"coef", "amount", "region_id", "region_name", "created_at", "updated_at",
}

var tariffUpsert = db.UpsertConfig{
	Table:        tariffTable,
	Columns:      tariffColumns,
	ConflictKeys: []string{"date", "nmid", "warehouse_id", "region_id"},
	UpdateCols:   []string{"box_type_name", "size", "warehouse_name", "coef", "amount", "region_name", "updated_at"},
}

// selectRecord reads dates and numerics as text so values round-trip
// without float conversion.
const (
	recordColumns = `id, to_char(date, 'YYYY-MM-DD'), nmid, box_type_name, size, warehouse_id,
	warehouse_name, coef::text, amount::text, region_id, region_name, created_at, updated_at`
	selectRecord  = "SELECT " + recordColumns
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// NewPostgres connects a pool sized by cfg and returns a store over it.
func NewPostgres(ctx context.Context, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, storageErr("postgres: connect", err)
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storageErr("postgres: ping", err)
	}
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := db.Migrate(ctx, s.pool, migrationFS, "migrations"); err != nil {
		return storageErr("postgres: migrate", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Upsert inserts or merges items for date in a single transaction.
func (s *PostgresStore) Upsert(ctx context.Context, items []model.TariffItem, date string) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return 0, model.Errorf(model.KindInvalidInput, "postgres: upsert", "invalid date %q", date)
	}

	items = dedupeItems(items, date)
	now := s.now().UTC()
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{
			day, it.NMID, it.BoxTypeName, it.Size, it.WarehouseID, it.WarehouseName,
			it.Coef.InexactFloat64(), it.Amount.InexactFloat64(),
			it.RegionID, it.RegionName, now, now,
		}
	}

	n, err := db.BulkUpsert(ctx, s.pool, tariffUpsert, rows)
	if err != nil {
		return 0, storageErr("postgres: upsert", err)
	}
	metrics.RowsUpserted.Add(float64(n))
	return n, nil
}

func (s *PostgresStore) GetByDate(ctx context.Context, date string) ([]model.TariffRecord, error) {
	return s.queryRecords(ctx, "postgres: get by date",
		selectRecord+` FROM tariff_data WHERE date = $1::date ORDER BY coef ASC, id ASC`, date)
}

func (s *PostgresStore) GetAllSorted(ctx context.Context) ([]model.TariffRecord, error) {
	return s.queryRecords(ctx, "postgres: get all sorted",
		selectRecord+` FROM tariff_data ORDER BY date DESC, coef ASC, id ASC`)
}

func (s *PostgresStore) GetByRange(ctx context.Context, start, end string) ([]model.TariffRecord, error) {
	if start > end {
		return []model.TariffRecord{}, nil
	}
	return s.queryRecords(ctx, "postgres: get by range",
		selectRecord+` FROM tariff_data WHERE date BETWEEN $1::date AND $2::date
		ORDER BY date DESC, coef ASC, id ASC`, start, end)
}

func (s *PostgresStore) GetAllDates(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT to_char(date, 'YYYY-MM-DD') AS d FROM tariff_data ORDER BY d DESC`)
	if err != nil {
		return nil, storageErr("postgres: get all dates", err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, storageErr("postgres: scan date", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("postgres: get all dates", err)
	}
	return dates, nil
}

func (s *PostgresStore) GetLatestDate(ctx context.Context) (string, error) {
	var latest string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(to_char(MAX(date), 'YYYY-MM-DD'), '') FROM tariff_data`,
	).Scan(&latest)
	if err != nil {
		return "", storageErr("postgres: get latest date", err)
	}
	return latest, nil
}

// GetSnapshot returns the most recent record per (nmid, warehouse_id,
// region_id). When that query fails or yields nothing it falls back to the
// latest SnapshotFallbackLimit rows, still one per entity.
func (s *PostgresStore) GetSnapshot(ctx context.Context) ([]model.TariffRecord, error) {
	log := zap.L().With(zap.String("component", "store.snapshot"))

	records, err := s.queryRecords(ctx, "postgres: snapshot",
		`SELECT DISTINCT ON (nmid, warehouse_id, region_id) `+recordColumns+`
		FROM tariff_data
		ORDER BY nmid, warehouse_id, region_id, date DESC, coef ASC`)
	if err == nil && len(records) > 0 {
		log.Info("got snapshot data", zap.Int("count", len(records)))
		return records, nil
	}

	metrics.SnapshotFallbacks.Inc()
	log.Warn("snapshot query returned nothing, using fallback",
		zap.Error(err),
		zap.Int("limit", SnapshotFallbackLimit),
	)

	recent, ferr := s.queryRecords(ctx, "postgres: snapshot fallback",
		selectRecord+` FROM tariff_data ORDER BY date DESC, coef ASC, id ASC LIMIT $1`, SnapshotFallbackLimit)
	if ferr != nil {
		return nil, ferr
	}
	return firstPerEntity(recent), nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, op, sql string, args ...any) ([]model.TariffRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := []model.TariffRecord{}
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func scanPostgresRecord(rows pgx.Rows) (model.TariffRecord, error) {
	var (
		r            model.TariffRecord
		coef, amount string
	)
	if err := rows.Scan(
		&r.ID, &r.Date, &r.NMID, &r.BoxTypeName, &r.Size, &r.WarehouseID,
		&r.WarehouseName, &coef, &amount, &r.RegionID, &r.RegionName, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return r, eris.Wrap(err, "scan record")
	}

	var err error
	if r.Coef, err = decimal.NewFromString(coef); err != nil {
		return r, eris.Wrapf(err, "parse coef %q", coef)
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return r, eris.Wrapf(err, "parse amount %q", amount)
	}
	return r, nil
}

func (s *PostgresStore) StartSyncRun(ctx context.Context, task string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_runs (task, status, started_at) VALUES ($1, 'running', $2) RETURNING id`,
		task, s.now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, storageErr("postgres: start sync run", eris.Wrapf(err, "task %s", task))
	}
	return id, nil
}

func (s *PostgresStore) CompleteSyncRun(ctx context.Context, id, rowsSynced int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sync_runs SET status = 'complete', completed_at = $1, rows_synced = $2 WHERE id = $3`,
		s.now().UTC(), rowsSynced, id,
	)
	if err != nil {
		return storageErr("postgres: complete sync run", eris.Wrapf(err, "run %d", id))
	}
	return nil
}

func (s *PostgresStore) FailSyncRun(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sync_runs SET status = 'failed', completed_at = $1, error = $2 WHERE id = $3`,
		s.now().UTC(), errMsg, id,
	)
	if err != nil {
		return storageErr("postgres: fail sync run", eris.Wrapf(err, "run %d", id))
	}
	return nil
}

func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, task, status, started_at, completed_at, rows_synced, error
		 FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, storageErr("postgres: list sync runs", err)
	}
	defer rows.Close()

	runs := []model.SyncRun{}
	for rows.Next() {
		var (
			r      model.SyncRun
			status string
			errStr *string
		)
		if err := rows.Scan(&r.ID, &r.Task, &status, &r.StartedAt, &r.CompletedAt, &r.Rows, &errStr); err != nil {
			return nil, storageErr("postgres: scan sync run", err)
		}
		r.Status = model.SyncRunStatus(status)
		if errStr != nil {
			r.Error = *errStr
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("postgres: list sync runs", err)
	}
	return runs, nil
}
