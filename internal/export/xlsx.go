package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tariff-sync/internal/model"
)

const defaultSheetName = "Sheet1"

// XLSXWriter writes a workbook file per destination. SpreadsheetID is the
// file path; the range is ignored since every write replaces the file.
type XLSXWriter struct{}

// NewXLSXWriter creates an XLSXWriter.
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{}
}

// Clear removes the workbook file. A missing file is not an error.
func (w *XLSXWriter) Clear(_ context.Context, dest model.SheetDestination) error {
	if err := os.Remove(dest.SpreadsheetID); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "xlsx: remove %s", dest.SpreadsheetID)
	}
	return nil
}

func (w *XLSXWriter) Write(ctx context.Context, dest model.SheetDestination, rows [][]any) error {
	if dest.SpreadsheetID == "" {
		return eris.New("xlsx: empty file path")
	}

	name := dest.SheetName
	if name == "" {
		name = defaultSheetName
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %q", name)
	}
	for _, values := range rows {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		row := sheet.AddRow()
		for _, v := range values {
			setCell(row.AddCell(), v)
		}
	}

	if dir := filepath.Dir(dest.SpreadsheetID); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "xlsx: create dir %s", dir)
		}
	}
	if err := f.Save(dest.SpreadsheetID); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", dest.SpreadsheetID)
	}
	return nil
}

func setCell(cell *xlsx.Cell, v any) {
	switch val := v.(type) {
	case string:
		cell.SetString(val)
	case int:
		cell.SetInt64(int64(val))
	case int64:
		cell.SetInt64(val)
	case float64:
		cell.SetFloat(val)
	case nil:
		cell.SetString("")
	default:
		cell.SetString(fmt.Sprint(val))
	}
}
