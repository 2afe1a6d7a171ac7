package sequencemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/sequence"
)

// MockExecutor is a testify mock of sequence.Executor.
type MockExecutor struct {
	mock.Mock
}

// Execute provides a mock function with given fields: ctx, req
func (_m *MockExecutor) Execute(ctx context.Context, req sequence.Request) (*model.ExecutionResult, error) {
	ret := _m.Called(ctx, req)

	var r0 *model.ExecutionResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, sequence.Request) (*model.ExecutionResult, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, sequence.Request) *model.ExecutionResult); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.ExecutionResult)
	}

	if rf, ok := ret.Get(1).(func(context.Context, sequence.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
