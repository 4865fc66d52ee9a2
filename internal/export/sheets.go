package export

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-sync/internal/model"
	"github.com/sells-group/tariff-sync/pkg/sheets"
)

// SheetsWriter writes to Google Sheets ranges.
type SheetsWriter struct {
	client sheets.Client
}

// NewSheetsWriter wraps client. A nil client yields a writer whose calls
// fail with an export error.
func NewSheetsWriter(client sheets.Client) *SheetsWriter {
	return &SheetsWriter{client: client}
}

func (w *SheetsWriter) Clear(ctx context.Context, dest model.SheetDestination) error {
	if w.client == nil {
		return model.Errorf(model.KindExport, "sheets: clear", "google sheets not initialized")
	}
	return w.client.ClearValues(ctx, dest.SpreadsheetID, dest.A1())
}

func (w *SheetsWriter) Write(ctx context.Context, dest model.SheetDestination, rows [][]any) error {
	if w.client == nil {
		return model.Errorf(model.KindExport, "sheets: write", "google sheets not initialized")
	}
	if _, err := w.client.UpdateValues(ctx, dest.SpreadsheetID, dest.A1(), rows); err != nil {
		return eris.Wrapf(err, "sheets: update %s", dest.SpreadsheetID)
	}
	return nil
}
