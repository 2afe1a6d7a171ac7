package processmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/stager/internal/process"
)

// MockRunner is a testify mock of process.Runner.
type MockRunner struct {
	mock.Mock
}

// Run provides a mock function with given fields: ctx, req
func (_m *MockRunner) Run(ctx context.Context, req process.Request) (*process.Result, error) {
	ret := _m.Called(ctx, req)

	var r0 *process.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, process.Request) (*process.Result, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, process.Request) *process.Result); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*process.Result)
	}

	if rf, ok := ret.Get(1).(func(context.Context, process.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockRunner creates a new MockRunner and registers the expectations assertion on cleanup.
func NewMockRunner(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRunner {
	m := &MockRunner{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
