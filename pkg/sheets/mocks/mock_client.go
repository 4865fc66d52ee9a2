// Package mocks provides test doubles for the sheets client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	sheets "github.com/sells-group/tariff-sync/pkg/sheets"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// ClearValues provides a mock function with given fields: ctx, spreadsheetID, a1Range
func (_m *MockClient) ClearValues(ctx context.Context, spreadsheetID string, a1Range string) error {
	ret := _m.Called(ctx, spreadsheetID, a1Range)

	if len(ret) == 0 {
		panic("no return value specified for ClearValues")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		return rf(ctx, spreadsheetID, a1Range)
	}
	return ret.Error(0)
}

// UpdateValues provides a mock function with given fields: ctx, spreadsheetID, a1Range, values
func (_m *MockClient) UpdateValues(ctx context.Context, spreadsheetID string, a1Range string, values [][]any) (*sheets.UpdateResponse, error) {
	ret := _m.Called(ctx, spreadsheetID, a1Range, values)

	if len(ret) == 0 {
		panic("no return value specified for UpdateValues")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string, [][]any) (*sheets.UpdateResponse, error)); ok {
		return rf(ctx, spreadsheetID, a1Range, values)
	}

	var r0 *sheets.UpdateResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*sheets.UpdateResponse)
	}
	return r0, ret.Error(1)
}

// NewMockClient creates a new instance of MockClient. It also registers a
// cleanup function to assert the mocks expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
