// Package export writes tariff snapshots to spreadsheet destinations.
package export

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tariff-sync/internal/metrics"
	"github.com/sells-group/tariff-sync/internal/model"
)

// Header is the first row written to every destination.
var Header = []any{"Дата", "NMID", "Тип короба", "Размер", "Склад ID", "Склад", "Коэф.", "Сумма", "Регион ID", "Регион"}

// defaultConcurrency bounds simultaneous destination exports.
const defaultConcurrency = 4

// Writer replaces the contents of one kind of destination.
type Writer interface {
	Clear(ctx context.Context, dest model.SheetDestination) error
	Write(ctx context.Context, dest model.SheetDestination, rows [][]any) error
}

// Exporter routes destinations to writers by kind.
type Exporter struct {
	writers     map[string]Writer
	concurrency int
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithWriter registers w for destinations of kind.
func WithWriter(kind string, w Writer) Option {
	return func(e *Exporter) {
		e.writers[kind] = w
	}
}

// WithConcurrency bounds how many destinations ExportAll runs at once.
func WithConcurrency(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an Exporter. Without a sheets writer, sheets destinations
// fail with an export error.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		writers:     map[string]Writer{model.DestinationXLSX: NewXLSXWriter()},
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Exporter) writer(dest model.SheetDestination) (Writer, error) {
	w, ok := e.writers[dest.DestinationKind()]
	if !ok || w == nil {
		return nil, model.Errorf(model.KindExport, "export", "%s writer not initialized", dest.DestinationKind())
	}
	return w, nil
}

// Clear empties the destination range.
func (e *Exporter) Clear(ctx context.Context, dest model.SheetDestination) error {
	w, err := e.writer(dest)
	if err != nil {
		return err
	}
	if err := w.Clear(ctx, dest); err != nil {
		return model.NewError(model.KindExport, "export: clear "+dest.SpreadsheetID, err)
	}
	return nil
}

// Write replaces the destination range with a header and records sorted by
// coef ascending. An empty record list writes nothing.
func (e *Exporter) Write(ctx context.Context, dest model.SheetDestination, records []model.TariffRecord) error {
	w, err := e.writer(dest)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		zap.L().Warn("export: no data to export", zap.String("spreadsheet_id", dest.SpreadsheetID))
		return nil
	}

	rows := Rows(records)
	if err := w.Write(ctx, dest, rows); err != nil {
		return model.NewError(model.KindExport, "export: write "+dest.SpreadsheetID, err)
	}
	zap.L().Info("export: updated destination",
		zap.String("spreadsheet_id", dest.SpreadsheetID),
		zap.String("kind", dest.DestinationKind()),
		zap.Int("rows", len(rows)-1),
	)
	return nil
}

// Rows renders records as a header row plus one row per record, sorted by
// coef ascending with ties in input order.
func Rows(records []model.TariffRecord) [][]any {
	sorted := make([]model.TariffRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Coef.LessThan(sorted[j].Coef)
	})

	rows := make([][]any, 0, len(sorted)+1)
	rows = append(rows, Header)
	for _, r := range sorted {
		size := ""
		if r.Size != nil {
			size = *r.Size
		}
		rows = append(rows, []any{
			r.Date, r.NMID, r.BoxTypeName, size,
			r.WarehouseID, r.WarehouseName,
			r.Coef.InexactFloat64(), r.Amount.InexactFloat64(),
			r.RegionID, r.RegionName,
		})
	}
	return rows
}

// ExportAll clears then writes every destination independently. Failures
// are recorded per destination and never abort siblings.
func (e *Exporter) ExportAll(ctx context.Context, dests []model.SheetDestination, records []model.TariffRecord) *Report {
	report := &Report{Results: make([]Result, len(dests))}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, dest := range dests {
		g.Go(func() error {
			res := Result{Destination: dest}
			if err := e.Clear(ctx, dest); err != nil {
				res.Err = err
			} else if err := e.Write(ctx, dest, records); err != nil {
				res.Err = err
			} else {
				res.Rows = len(records)
			}

			status := "ok"
			if res.Err != nil {
				status = "error"
				zap.L().Error("export: destination failed",
					zap.String("spreadsheet_id", dest.SpreadsheetID),
					zap.String("kind", dest.DestinationKind()),
					zap.Error(res.Err),
				)
			}
			metrics.ExportDestinations.WithLabelValues(dest.DestinationKind(), status).Inc()
			report.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return report
}
