package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/export"
	"github.com/sells-group/tariff-sync/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockService struct {
	mock.Mock
}

func (m *mockService) FetchAndPersist(ctx context.Context, date string) (int64, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockService) SaveTariffData(ctx context.Context, items []model.TariffItem, date string) (int64, error) {
	args := m.Called(ctx, items, date)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockService) ExportSnapshot(ctx context.Context, dests []model.SheetDestination) (*export.Report, error) {
	args := m.Called(ctx, dests)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.Report), args.Error(1)
}

func (m *mockService) GetByDate(ctx context.Context, date string) ([]model.TariffRecord, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TariffRecord), args.Error(1)
}

func (m *mockService) GetLatestDate(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockService) GetAllSorted(ctx context.Context) ([]model.TariffRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TariffRecord), args.Error(1)
}

func (m *mockService) GetByRange(ctx context.Context, start, end string) ([]model.TariffRecord, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TariffRecord), args.Error(1)
}

func (m *mockService) GetAllDates(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockService) GetSnapshot(ctx context.Context) ([]model.TariffRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TariffRecord), args.Error(1)
}

func (m *mockService) SyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SyncRun), args.Error(1)
}

func (m *mockService) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func record(date string, nmid int64) model.TariffRecord {
	return model.TariffRecord{
		ID:   nmid,
		Date: date,
		TariffItem: model.TariffItem{
			NMID:        nmid,
			BoxTypeName: "Box",
			WarehouseID: 5,
			Coef:        decimal.RequireFromString("0.07"),
			Amount:      decimal.RequireFromString("50"),
			RegionID:    9,
		},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	svc := &mockService{}
	svc.On("Ping", mock.Anything).Return(nil).Once()
	svc.On("Ping", mock.Anything).Return(errors.New("down")).Once()
	h := New(svc).Handler()

	rec, body := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetDates(t *testing.T) {
	svc := &mockService{}
	svc.On("GetAllDates", mock.Anything).Return([]string{"2025-01-02", "2025-01-01"}, nil)

	rec, body := do(t, New(svc).Handler(), http.MethodGet, "/api/tariff/dates", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, []any{"2025-01-02", "2025-01-01"}, body["dates"])
}

func TestGetLatest(t *testing.T) {
	svc := &mockService{}
	svc.On("GetLatestDate", mock.Anything).Return("2025-01-02", nil)
	svc.On("GetByDate", mock.Anything, "2025-01-02").Return([]model.TariffRecord{record("2025-01-02", 1)}, nil)

	rec, body := do(t, New(svc).Handler(), http.MethodGet, "/api/tariff/latest", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-01-02", body["date"])
	assert.Equal(t, float64(1), body["count"])
}

func TestGetLatest_NoData(t *testing.T) {
	svc := &mockService{}
	svc.On("GetLatestDate", mock.Anything).Return("", nil)

	rec, body := do(t, New(svc).Handler(), http.MethodGet, "/api/tariff/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No data", body["message"])
}

func TestGetByDate(t *testing.T) {
	svc := &mockService{}
	svc.On("GetByDate", mock.Anything, "2025-01-01").Return([]model.TariffRecord{record("2025-01-01", 1)}, nil)

	rec, body := do(t, New(svc).Handler(), http.MethodGet, "/api/tariff/2025-01-01", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "0.07", data[0].(map[string]any)["coef"])
}

func TestGetByDate_InvalidInput(t *testing.T) {
	svc := &mockService{}
	svc.On("GetByDate", mock.Anything, "yesterday").
		Return(nil, model.Errorf(model.KindInvalidInput, "validate date", "bad"))

	rec, _ := do(t, New(svc).Handler(), http.MethodGet, "/api/tariff/yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRange(t *testing.T) {
	svc := &mockService{}
	svc.On("GetByRange", mock.Anything, "2025-01-01", "2025-01-31").Return([]model.TariffRecord{}, nil)
	h := New(svc).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/tariff/range?startDate=2025-01-01&endDate=2025-01-31", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])

	rec, _ = do(t, h, http.MethodGet, "/api/tariff/range?startDate=2025-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAllAndSnapshot(t *testing.T) {
	svc := &mockService{}
	svc.On("GetAllSorted", mock.Anything).Return([]model.TariffRecord{record("2025-01-01", 1), record("2025-01-01", 2)}, nil)
	svc.On("GetSnapshot", mock.Anything).Return([]model.TariffRecord{record("2025-01-01", 1)}, nil)
	h := New(svc).Handler()

	_, body := do(t, h, http.MethodGet, "/api/tariff/all", "")
	assert.Equal(t, float64(2), body["count"])

	_, body = do(t, h, http.MethodGet, "/api/tariff/snapshot", "")
	assert.Equal(t, float64(1), body["count"])
}

func TestSave(t *testing.T) {
	svc := &mockService{}
	svc.On("SaveTariffData", mock.Anything, mock.MatchedBy(func(items []model.TariffItem) bool {
		return len(items) == 1 && items[0].NMID == 7 && items[0].Coef.Equal(decimal.RequireFromString("1.25"))
	}), "2025-01-01").Return(int64(1), nil)

	body := `[{"nmid":7,"box_type_name":"Box","warehouse_id":5,"warehouse_name":"W","coef":1.25,"amount":"40","region_id":9,"region_name":"R"}]`
	rec, out := do(t, New(svc).Handler(), http.MethodPost, "/api/tariff/2025-01-01", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Saved", out["message"])
	assert.Equal(t, float64(1), out["count"])
	svc.AssertExpectations(t)
}

func TestSave_BadBody(t *testing.T) {
	svc := &mockService{}
	h := New(svc).Handler()

	rec, _ := do(t, h, http.MethodPost, "/api/tariff/2025-01-01", `{"nmid":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/tariff/not-a-date", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "SaveTariffData", mock.Anything, mock.Anything, mock.Anything)
}

func TestTriggerSync_UsesLocalDate(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	clock := func() time.Time { return time.Date(2025, 1, 1, 22, 0, 0, 0, time.UTC) }

	svc := &mockService{}
	svc.On("FetchAndPersist", mock.Anything, "2025-01-02").Return(int64(12), nil)

	rec, body := do(t, New(svc, WithLocation(loc), WithClock(clock)).Handler(), http.MethodPost, "/api/tariff/sync", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-01-02", body["date"])
	assert.Equal(t, float64(12), body["count"])
}

func TestTriggerSync_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", model.Errorf(model.KindConfiguration, "wb", "no key"), http.StatusServiceUnavailable},
		{"fetch", model.Errorf(model.KindFetch, "wb", "down"), http.StatusBadGateway},
		{"storage", model.Errorf(model.KindStorage, "pg", "down"), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("FetchAndPersist", mock.Anything, mock.Anything).Return(int64(0), tt.err)

			rec, body := do(t, New(svc).Handler(), http.MethodPost, "/api/tariff/sync", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestTriggerExport(t *testing.T) {
	dests := []model.SheetDestination{{SpreadsheetID: "a"}, {SpreadsheetID: "b"}}
	svc := &mockService{}
	svc.On("ExportSnapshot", mock.Anything, dests).Return(&export.Report{Results: []export.Result{
		{Destination: dests[0], Err: errors.New("denied")},
		{Destination: dests[1], Rows: 4},
	}}, nil)

	rec, body := do(t, New(svc, WithDestinations(dests)).Handler(), http.MethodPost, "/api/tariff/export", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["succeeded"])
	assert.Equal(t, float64(1), body["failed"])
	results := body["results"].([]any)
	assert.Equal(t, "denied", results[0].(map[string]any)["error"])
}

func TestGetRuns(t *testing.T) {
	svc := &mockService{}
	svc.On("SyncRuns", mock.Anything, 5).Return([]model.SyncRun{{ID: 1, Task: model.TaskTariffSync}}, nil)
	h := New(svc).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/tariff/runs?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = do(t, h, http.MethodGet, "/api/tariff/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	New(&mockService{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(model.Errorf(model.KindInvalidInput, "op", "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(model.Errorf(model.KindExport, "op", "x")))
}
