package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tariff-sync/internal/export"
	"github.com/sells-group/tariff-sync/internal/model"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upsert(ctx context.Context, items []model.TariffItem, date string) (int64, error) {
	args := m.Called(ctx, items, date)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) GetByDate(ctx context.Context, date string) ([]model.TariffRecord, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TariffRecord), args.Error(1)
}

func (m *mockStore) GetAllDates(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) GetLatestDate(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockStore) GetAllSorted(ctx context.Context) ([]model.TariffRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TariffRecord), args.Error(1)
}

func (m *mockStore) GetByRange(ctx context.Context, start, end string) ([]model.TariffRecord, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TariffRecord), args.Error(1)
}

func (m *mockStore) GetSnapshot(ctx context.Context) ([]model.TariffRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TariffRecord), args.Error(1)
}

func (m *mockStore) StartSyncRun(ctx context.Context, task string) (int64, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) CompleteSyncRun(ctx context.Context, id, rows int64) error {
	return m.Called(ctx, id, rows).Error(0)
}

func (m *mockStore) FailSyncRun(ctx context.Context, id int64, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}

func (m *mockStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SyncRun), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// --- Exporter Mock ---

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) ExportAll(ctx context.Context, dests []model.SheetDestination, records []model.TariffRecord) *export.Report {
	args := m.Called(ctx, dests, records)
	return args.Get(0).(*export.Report)
}
