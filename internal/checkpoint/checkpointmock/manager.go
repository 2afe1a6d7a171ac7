package checkpointmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/stager/internal/checkpoint"
)

// MockManager is a testify mock of checkpoint.Manager.
type MockManager struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, req
func (_m *MockManager) Save(ctx context.Context, req checkpoint.SaveRequest) (*checkpoint.SaveResult, error) {
	ret := _m.Called(ctx, req)

	var r0 *checkpoint.SaveResult
	if rf, ok := ret.Get(0).(func(context.Context, checkpoint.SaveRequest) *checkpoint.SaveResult); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*checkpoint.SaveResult)
	}

	return r0, ret.Error(1)
}

// Load provides a mock function with given fields: ctx, req
func (_m *MockManager) Load(ctx context.Context, req checkpoint.LoadRequest) (bool, error) {
	ret := _m.Called(ctx, req)
	return ret.Bool(0), ret.Error(1)
}

// NewMockManager creates a new MockManager and registers the expectations assertion on cleanup.
func NewMockManager(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockManager {
	m := &MockManager{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
