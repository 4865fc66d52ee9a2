// Package mocks provides test doubles for the fetcher package.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/tariff-sync/internal/model"
)

// MockFetcher is a mock type for the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

// NewMockFetcher creates a MockFetcher whose expectations are asserted on test cleanup.
func NewMockFetcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockFetcher {
	m := &MockFetcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Fetch provides a mock function with given fields: ctx, date
func (_m *MockFetcher) Fetch(ctx context.Context, date string) ([]model.TariffItem, error) {
	ret := _m.Called(ctx, date)

	if len(ret) == 0 {
		panic("no return value specified for Fetch")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) ([]model.TariffItem, error)); ok {
		return rf(ctx, date)
	}

	var r0 []model.TariffItem
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.TariffItem)
	}
	return r0, ret.Error(1)
}
