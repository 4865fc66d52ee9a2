// Package store persists tariff records and sync history.
package store

import (
	"context"

	"github.com/sells-group/tariff-sync/internal/model"
)

// SnapshotFallbackLimit bounds the recent-rows query used when the snapshot
// query fails or returns nothing.
const SnapshotFallbackLimit = 100

// defaultRunsLimit applies when ListSyncRuns gets a non-positive limit.
const defaultRunsLimit = 20

// Store defines the persistence interface for the tariff pipeline.
type Store interface {
	// Tariff records
	Upsert(ctx context.Context, items []model.TariffItem, date string) (int64, error)
	GetByDate(ctx context.Context, date string) ([]model.TariffRecord, error)
	GetAllDates(ctx context.Context) ([]string, error)
	GetLatestDate(ctx context.Context) (string, error)
	GetAllSorted(ctx context.Context) ([]model.TariffRecord, error)
	GetByRange(ctx context.Context, start, end string) ([]model.TariffRecord, error)
	GetSnapshot(ctx context.Context) ([]model.TariffRecord, error)

	// Sync history
	StartSyncRun(ctx context.Context, task string) (int64, error)
	CompleteSyncRun(ctx context.Context, id, rows int64) error
	FailSyncRun(ctx context.Context, id int64, errMsg string) error
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// dedupeItems collapses items sharing a natural key for date, keeping the
// last occurrence at the first occurrence's position.
func dedupeItems(items []model.TariffItem, date string) []model.TariffItem {
	pos := make(map[model.NaturalKey]int, len(items))
	out := make([]model.TariffItem, 0, len(items))
	for _, it := range items {
		k := it.Key(date)
		if p, ok := pos[k]; ok {
			out[p] = it
			continue
		}
		pos[k] = len(out)
		out = append(out, it)
	}
	return out
}

// firstPerEntity keeps the first record seen for each entity. Input is
// expected in date desc, coef asc order, so the survivor is the snapshot row.
func firstPerEntity(records []model.TariffRecord) []model.TariffRecord {
	seen := make(map[model.EntityKey]bool, len(records))
	out := make([]model.TariffRecord, 0, len(records))
	for _, r := range records {
		if seen[r.Entity()] {
			continue
		}
		seen[r.Entity()] = true
		out = append(out, r)
	}
	return out
}

func storageErr(op string, err error) error {
	return model.NewError(model.KindStorage, op, err)
}
