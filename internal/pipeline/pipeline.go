// Package pipeline sequences the tariff sync: fetch then persist, and
// snapshot then export. It also serves the read operations used by the API.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/export"
	"github.com/sells-group/tariff-sync/internal/fetcher"
	"github.com/sells-group/tariff-sync/internal/model"
	"github.com/sells-group/tariff-sync/internal/store"
)

// Exporter writes a snapshot to a set of destinations.
type Exporter interface {
	ExportAll(ctx context.Context, dests []model.SheetDestination, records []model.TariffRecord) *export.Report
}

// Pipeline orchestrates fetch, persist and export for one dataset.
type Pipeline struct {
	store    store.Store
	fetcher  fetcher.Fetcher
	exporter Exporter
}

// New creates a Pipeline. The exporter may be nil when no destinations are
// configured; ExportSnapshot then fails with a configuration error.
func New(st store.Store, f fetcher.Fetcher, exp Exporter) *Pipeline {
	return &Pipeline{
		store:    st,
		fetcher:  f,
		exporter: exp,
	}
}

// trackRun records fn as a sync run. History failures are logged and never
// change the outcome of fn.
func (p *Pipeline) trackRun(ctx context.Context, task string, fn func() (int64, error)) (int64, error) {
	log := zap.L().With(zap.String("task", task))

	id, startErr := p.store.StartSyncRun(ctx, task)
	if startErr != nil {
		log.Warn("pipeline: failed to record sync run", zap.Error(startErr))
	}

	rows, err := fn()

	if startErr == nil {
		var histErr error
		if err != nil {
			histErr = p.store.FailSyncRun(ctx, id, err.Error())
		} else {
			histErr = p.store.CompleteSyncRun(ctx, id, rows)
		}
		if histErr != nil {
			log.Warn("pipeline: failed to update sync run", zap.Int64("run_id", id), zap.Error(histErr))
		}
	}
	return rows, err
}

// FetchAndPersist fetches tariffs for date and upserts them. Fetching
// completes before anything is written.
func (p *Pipeline) FetchAndPersist(ctx context.Context, date string) (int64, error) {
	if err := model.ValidateDate(date); err != nil {
		return 0, err
	}
	log := zap.L().With(zap.String("date", date))

	return p.trackRun(ctx, model.TaskTariffSync, func() (int64, error) {
		items, err := p.fetcher.Fetch(ctx, date)
		if err != nil {
			return 0, err
		}
		log.Info("pipeline: fetched tariffs", zap.Int("items", len(items)))

		n, err := p.store.Upsert(ctx, items, date)
		if err != nil {
			return 0, err
		}
		log.Info("pipeline: tariff sync complete", zap.Int64("rows", n))
		return n, nil
	})
}

// SaveTariffData persists manually supplied items for date.
func (p *Pipeline) SaveTariffData(ctx context.Context, items []model.TariffItem, date string) (int64, error) {
	if err := model.ValidateDate(date); err != nil {
		return 0, err
	}
	n, err := p.store.Upsert(ctx, items, date)
	if err != nil {
		return 0, err
	}
	zap.L().Info("pipeline: saved tariff data", zap.String("date", date), zap.Int64("rows", n))
	return n, nil
}

// ExportSnapshot reads the snapshot and writes it to every destination.
// Destination failures are reported per destination, not returned. The
// returned error covers only the snapshot read and missing configuration.
func (p *Pipeline) ExportSnapshot(ctx context.Context, dests []model.SheetDestination) (*export.Report, error) {
	if p.exporter == nil {
		return nil, model.Errorf(model.KindConfiguration, "pipeline: export", "exporter not configured")
	}
	if len(dests) == 0 {
		zap.L().Warn("pipeline: no export destinations configured")
		return &export.Report{}, nil
	}

	var report *export.Report
	_, err := p.trackRun(ctx, model.TaskSheetsExport, func() (int64, error) {
		records, err := p.store.GetSnapshot(ctx)
		if err != nil {
			return 0, err
		}
		if len(records) == 0 {
			zap.L().Warn("pipeline: no tariff data to export")
			report = &export.Report{}
			return 0, nil
		}

		report = p.exporter.ExportAll(ctx, dests, records)
		zap.L().Info("pipeline: snapshot exported",
			zap.Int("records", len(records)),
			zap.Int("succeeded", report.Succeeded()),
			zap.Int("failed", report.Failed()),
		)
		if failed := report.Failed(); failed > 0 {
			return int64(len(records)), eris.Errorf("pipeline: %d of %d destinations failed", failed, len(dests))
		}
		return int64(len(records)), nil
	})
	if report == nil {
		return nil, err
	}
	return report, nil
}

// GetByDate returns the records for date ordered by coef.
func (p *Pipeline) GetByDate(ctx context.Context, date string) ([]model.TariffRecord, error) {
	if err := model.ValidateDate(date); err != nil {
		return nil, err
	}
	return p.store.GetByDate(ctx, date)
}

// GetLatestDate returns the most recent stored date, or "" when empty.
func (p *Pipeline) GetLatestDate(ctx context.Context) (string, error) {
	return p.store.GetLatestDate(ctx)
}

// GetAllSorted returns every record by date desc, coef asc.
func (p *Pipeline) GetAllSorted(ctx context.Context) ([]model.TariffRecord, error) {
	return p.store.GetAllSorted(ctx)
}

// GetByRange returns records with start <= date <= end.
func (p *Pipeline) GetByRange(ctx context.Context, start, end string) ([]model.TariffRecord, error) {
	if err := model.ValidateDate(start); err != nil {
		return nil, err
	}
	if err := model.ValidateDate(end); err != nil {
		return nil, err
	}
	return p.store.GetByRange(ctx, start, end)
}

// GetAllDates returns distinct stored dates, newest first.
func (p *Pipeline) GetAllDates(ctx context.Context) ([]string, error) {
	return p.store.GetAllDates(ctx)
}

// GetSnapshot returns the latest record per SKU, warehouse and region.
func (p *Pipeline) GetSnapshot(ctx context.Context) ([]model.TariffRecord, error) {
	return p.store.GetSnapshot(ctx)
}

// SyncRuns returns the most recent sync runs.
func (p *Pipeline) SyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	return p.store.ListSyncRuns(ctx, limit)
}

// Ping checks the store connection.
func (p *Pipeline) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}
