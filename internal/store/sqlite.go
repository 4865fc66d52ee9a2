package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tariff-sync/internal/metrics"
	"github.com/sells-group/tariff-sync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are stored as
// YYYY-MM-DD text, numerics as REAL and timestamps as fixed-width RFC 3339 text.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// sqlitePragmas are applied to every connection the driver opens.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pool holds a single connection so concurrent writers queue in process
// instead of failing with SQLITE_BUSY.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, storageErr("sqlite: open", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, storageErr("sqlite: open", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// sqliteTime is fixed-width so stored timestamps sort lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tariff_data (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	date           TEXT NOT NULL,
	nmid           INTEGER NOT NULL,
	box_type_name  TEXT NOT NULL,
	size           TEXT,
	warehouse_id   INTEGER NOT NULL,
	warehouse_name TEXT NOT NULL,
	coef           REAL NOT NULL,
	amount         REAL NOT NULL,
	region_id      INTEGER NOT NULL,
	region_name    TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	CONSTRAINT tariff_data_unique_daily UNIQUE (date, nmid, warehouse_id, region_id)
);

CREATE INDEX IF NOT EXISTS idx_date_coef ON tariff_data(date, coef);
CREATE INDEX IF NOT EXISTS idx_date ON tariff_data(date);

CREATE TABLE IF NOT EXISTS sync_runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	task         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	rows_synced  INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_task_started ON sync_runs(task, started_at);
`

const sqliteColumns = `id, date, nmid, box_type_name, size, warehouse_id, warehouse_name,
	coef, amount, region_id, region_name, created_at, updated_at`

const sqliteUpsert = `INSERT INTO tariff_data (
	date, nmid, box_type_name, size, warehouse_id, warehouse_name,
	coef, amount, region_id, region_name, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (date, nmid, warehouse_id, region_id) DO UPDATE SET
	box_type_name  = excluded.box_type_name,
	size           = excluded.size,
	warehouse_name = excluded.warehouse_name,
	coef           = excluded.coef,
	amount         = excluded.amount,
	region_name    = excluded.region_name,
	updated_at     = excluded.updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return storageErr("sqlite: migrate", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("sqlite: ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or merges items for date in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, items []model.TariffItem, date string) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := model.ValidateDate(date); err != nil {
		return 0, err
	}
	items = dedupeItems(items, date)
	now := s.now().UTC().Format(sqliteTime)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("sqlite: upsert", eris.Wrap(err, "begin tx"))
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, storageErr("sqlite: upsert", eris.Wrap(err, "prepare"))
	}
	defer stmt.Close() //nolint:errcheck

	var total int64
	for _, it := range items {
		res, err := stmt.ExecContext(ctx,
			date, it.NMID, it.BoxTypeName, it.Size, it.WarehouseID, it.WarehouseName,
			it.Coef.InexactFloat64(), it.Amount.InexactFloat64(),
			it.RegionID, it.RegionName, now, now,
		)
		if err != nil {
			return 0, storageErr("sqlite: upsert", eris.Wrapf(err, "warehouse %d region %d", it.WarehouseID, it.RegionID))
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("sqlite: upsert", eris.Wrap(err, "commit"))
	}
	metrics.RowsUpserted.Add(float64(total))
	return total, nil
}

func (s *SQLiteStore) GetByDate(ctx context.Context, date string) ([]model.TariffRecord, error) {
	return s.queryRecords(ctx, "sqlite: get by date",
		`SELECT `+sqliteColumns+` FROM tariff_data WHERE date = ? ORDER BY coef ASC, id ASC`, date)
}

func (s *SQLiteStore) GetAllSorted(ctx context.Context) ([]model.TariffRecord, error) {
	return s.queryRecords(ctx, "sqlite: get all sorted",
		`SELECT `+sqliteColumns+` FROM tariff_data ORDER BY date DESC, coef ASC, id ASC`)
}

func (s *SQLiteStore) GetByRange(ctx context.Context, start, end string) ([]model.TariffRecord, error) {
	if start > end {
		return []model.TariffRecord{}, nil
	}
	return s.queryRecords(ctx, "sqlite: get by range",
		`SELECT `+sqliteColumns+` FROM tariff_data WHERE date BETWEEN ? AND ?
		ORDER BY date DESC, coef ASC, id ASC`, start, end)
}

func (s *SQLiteStore) GetAllDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT date FROM tariff_data ORDER BY date DESC`)
	if err != nil {
		return nil, storageErr("sqlite: get all dates", err)
	}
	defer rows.Close() //nolint:errcheck

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, storageErr("sqlite: scan date", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("sqlite: get all dates", err)
	}
	return dates, nil
}

func (s *SQLiteStore) GetLatestDate(ctx context.Context) (string, error) {
	var latest string
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(date), '') FROM tariff_data`).Scan(&latest)
	if err != nil {
		return "", storageErr("sqlite: get latest date", err)
	}
	return latest, nil
}

// GetSnapshot mirrors PostgresStore.GetSnapshot using a ROW_NUMBER window.
func (s *SQLiteStore) GetSnapshot(ctx context.Context) ([]model.TariffRecord, error) {
	log := zap.L().With(zap.String("component", "store.snapshot"))

	records, err := s.queryRecords(ctx, "sqlite: snapshot",
		`SELECT `+sqliteColumns+` FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY nmid, warehouse_id, region_id
				ORDER BY date DESC, coef ASC, id ASC
			) AS rn
			FROM tariff_data
		) WHERE rn = 1
		ORDER BY nmid, warehouse_id, region_id`)
	if err == nil && len(records) > 0 {
		log.Info("got snapshot data", zap.Int("count", len(records)))
		return records, nil
	}

	metrics.SnapshotFallbacks.Inc()
	log.Warn("snapshot query returned nothing, using fallback",
		zap.Error(err),
		zap.Int("limit", SnapshotFallbackLimit),
	)

	recent, ferr := s.queryRecords(ctx, "sqlite: snapshot fallback",
		`SELECT `+sqliteColumns+` FROM tariff_data ORDER BY date DESC, coef ASC, id ASC LIMIT ?`,
		SnapshotFallbackLimit)
	if ferr != nil {
		return nil, ferr
	}
	return firstPerEntity(recent), nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, op, query string, args ...any) ([]model.TariffRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.TariffRecord{}
	for rows.Next() {
		var (
			r                    model.TariffRecord
			coef, amount         float64
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&r.ID, &r.Date, &r.NMID, &r.BoxTypeName, &r.Size, &r.WarehouseID, &r.WarehouseName,
			&coef, &amount, &r.RegionID, &r.RegionName, &createdAt, &updatedAt,
		); err != nil {
			return nil, storageErr(op, eris.Wrap(err, "scan record"))
		}
		r.Coef = decimal.NewFromFloat(coef)
		r.Amount = decimal.NewFromFloat(amount)
		if r.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
			return nil, storageErr(op, eris.Wrap(err, "parse created_at"))
		}
		if r.UpdatedAt, err = time.Parse(sqliteTime, updatedAt); err != nil {
			return nil, storageErr(op, eris.Wrap(err, "parse updated_at"))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *SQLiteStore) StartSyncRun(ctx context.Context, task string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (task, status, started_at) VALUES (?, 'running', ?)`,
		task, s.now().UTC().Format(sqliteTime),
	)
	if err != nil {
		return 0, storageErr("sqlite: start sync run", eris.Wrapf(err, "task %s", task))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("sqlite: start sync run", err)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteSyncRun(ctx context.Context, id, rowsSynced int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = 'complete', completed_at = ?, rows_synced = ? WHERE id = ?`,
		s.now().UTC().Format(sqliteTime), rowsSynced, id,
	)
	if err != nil {
		return storageErr("sqlite: complete sync run", eris.Wrapf(err, "run %d", id))
	}
	return nil
}

func (s *SQLiteStore) FailSyncRun(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = 'failed', completed_at = ?, error = ? WHERE id = ?`,
		s.now().UTC().Format(sqliteTime), errMsg, id,
	)
	if err != nil {
		return storageErr("sqlite: fail sync run", eris.Wrapf(err, "run %d", id))
	}
	return nil
}

func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task, status, started_at, completed_at, rows_synced, error
		 FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("sqlite: list sync runs", err)
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.SyncRun{}
	for rows.Next() {
		var (
			r           model.SyncRun
			status      string
			startedAt   string
			completedAt sql.NullString
			errStr      sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Task, &status, &startedAt, &completedAt, &r.Rows, &errStr); err != nil {
			return nil, storageErr("sqlite: scan sync run", err)
		}
		r.Status = model.SyncRunStatus(status)
		if r.StartedAt, err = time.Parse(sqliteTime, startedAt); err != nil {
			return nil, storageErr("sqlite: parse started_at", err)
		}
		if completedAt.Valid {
			t, err := time.Parse(sqliteTime, completedAt.String)
			if err != nil {
				return nil, storageErr("sqlite: parse completed_at", err)
			}
			r.CompletedAt = &t
		}
		r.Error = errStr.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("sqlite: list sync runs", err)
	}
	return runs, nil
}
