package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/model"
	"github.com/sells-group/tariff-sync/pkg/sheets"
	"github.com/sells-group/tariff-sync/pkg/sheets/mocks"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func record(nmid int64, coef string, size *string) model.TariffRecord {
	return model.TariffRecord{
		Date: "2024-01-15",
		TariffItem: model.TariffItem{
			NMID:          nmid,
			BoxTypeName:   "Box",
			Size:          size,
			WarehouseID:   1085,
			WarehouseName: "Коледино",
			Coef:          decimal.RequireFromString(coef),
			Amount:        decimal.RequireFromString("48.50"),
			RegionID:      534,
			RegionName:    "Московская область",
		},
	}
}

func sheetDest(id string) model.SheetDestination {
	return model.SheetDestination{SpreadsheetID: id, SheetName: "Tariffs", Range: "A1:J"}
}

func TestRows_HeaderAndSort(t *testing.T) {
	size := "M"
	rows := Rows([]model.TariffRecord{
		record(3, "1.5", nil),
		record(1, "0.8", &size),
		record(2, "1.5", nil),
	})

	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, int64(1), rows[1][1])
	assert.Equal(t, "M", rows[1][3])
	assert.Equal(t, 0.8, rows[1][6])
	// Equal coefs keep input order.
	assert.Equal(t, int64(3), rows[2][1])
	assert.Equal(t, int64(2), rows[3][1])
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, []any{"2024-01-15", int64(1), "Box", "M", 1085, "Коледино", 0.8, 48.5, 534, "Московская область"}, rows[1])
}

func TestRows_DoesNotMutateInput(t *testing.T) {
	in := []model.TariffRecord{record(1, "2", nil), record(2, "1", nil)}
	Rows(in)
	assert.Equal(t, int64(1), in[0].NMID)
}

func TestExporter_SheetsWrite(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("UpdateValues", mock.Anything, "sheet-1", "Tariffs!A1:J", mock.MatchedBy(func(v [][]any) bool {
		return len(v) == 3 && v[1][1] == int64(2)
	})).Return(&sheets.UpdateResponse{UpdatedRows: 3}, nil)

	e := New(WithWriter(model.DestinationSheets, NewSheetsWriter(client)))
	err := e.Write(context.Background(), sheetDest("sheet-1"), []model.TariffRecord{
		record(1, "1.2", nil), record(2, "0.9", nil),
	})
	require.NoError(t, err)
}

func TestExporter_WriteEmptyIsNoop(t *testing.T) {
	client := mocks.NewMockClient(t)
	e := New(WithWriter(model.DestinationSheets, NewSheetsWriter(client)))

	err := e.Write(context.Background(), sheetDest("sheet-1"), nil)
	require.NoError(t, err)
	client.AssertNotCalled(t, "UpdateValues", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExporter_NotInitialized(t *testing.T) {
	e := New()

	err := e.Clear(context.Background(), sheetDest("sheet-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExport)

	e = New(WithWriter(model.DestinationSheets, NewSheetsWriter(nil)))
	err = e.Write(context.Background(), sheetDest("sheet-1"), []model.TariffRecord{record(1, "1", nil)})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExport)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestExporter_ClearFailureWrapped(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ClearValues", mock.Anything, "sheet-1", "Tariffs!A1:J").Return(errors.New("boom"))

	e := New(WithWriter(model.DestinationSheets, NewSheetsWriter(client)))
	err := e.Clear(context.Background(), sheetDest("sheet-1"))
	require.Error(t, err)
	assert.Equal(t, model.KindExport, model.KindOf(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestExportAll_IsolatesFailures(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ClearValues", mock.Anything, "bad", mock.Anything).Return(errors.New("permission denied"))
	client.On("ClearValues", mock.Anything, "good", mock.Anything).Return(nil)
	client.On("UpdateValues", mock.Anything, "good", mock.Anything, mock.Anything).
		Return(&sheets.UpdateResponse{}, nil)

	e := New(WithWriter(model.DestinationSheets, NewSheetsWriter(client)), WithConcurrency(1))
	report := e.ExportAll(context.Background(),
		[]model.SheetDestination{sheetDest("bad"), sheetDest("good")},
		[]model.TariffRecord{record(1, "1", nil)},
	)

	require.Len(t, report.Results, 2)
	assert.Error(t, report.Results[0].Err)
	assert.Equal(t, "bad", report.Results[0].Destination.SpreadsheetID)
	assert.NoError(t, report.Results[1].Err)
	assert.Equal(t, 1, report.Results[1].Rows)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Succeeded())
}

func TestExportAll_NoDestinations(t *testing.T) {
	report := New().ExportAll(context.Background(), nil, []model.TariffRecord{record(1, "1", nil)})
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.Failed())
}

func TestXLSXWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tariffs.xlsx")
	dest := model.SheetDestination{SpreadsheetID: path, SheetName: "Tariffs", Kind: model.DestinationXLSX}

	e := New()
	report := e.ExportAll(context.Background(), []model.SheetDestination{dest}, []model.TariffRecord{
		record(7, "1.75", nil), record(8, "0.5", nil),
	})
	require.NoError(t, report.Results[0].Err)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet["Tariffs"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Дата", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "8", sheet.Rows[1].Cells[1].String())
	assert.Equal(t, "Коледино", sheet.Rows[1].Cells[5].String())
	assert.Equal(t, "7", sheet.Rows[2].Cells[1].String())
}

func TestXLSXWriter_ClearMissingFile(t *testing.T) {
	w := NewXLSXWriter()
	dest := model.SheetDestination{SpreadsheetID: filepath.Join(t.TempDir(), "none.xlsx")}
	assert.NoError(t, w.Clear(context.Background(), dest))
}

func TestXLSXWriter_ClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w := NewXLSXWriter()
	require.NoError(t, w.Clear(context.Background(), model.SheetDestination{SpreadsheetID: path}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestXLSXWriter_DefaultSheetName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.xlsx")
	w := NewXLSXWriter()
	require.NoError(t, w.Write(context.Background(), model.SheetDestination{SpreadsheetID: path}, [][]any{{"a", nil}}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	_, ok := f.Sheet[defaultSheetName]
	assert.True(t, ok)
}
