package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
)

// MockVariableRepository is a testify mock of storage.VariableRepository.
type MockVariableRepository struct {
	mock.Mock
}

// GetVariable provides a mock function with given fields: ctx, name
func (_m *MockVariableRepository) GetVariable(ctx context.Context, name string) (string, error) {
	ret := _m.Called(ctx, name)
	return ret.String(0), ret.Error(1)
}

// SetVariable provides a mock function with given fields: ctx, name, value
func (_m *MockVariableRepository) SetVariable(ctx context.Context, name, value string) error {
	ret := _m.Called(ctx, name, value)
	return ret.Error(0)
}

// DeleteVariable provides a mock function with given fields: ctx, name
func (_m *MockVariableRepository) DeleteVariable(ctx context.Context, name string) error {
	ret := _m.Called(ctx, name)
	return ret.Error(0)
}

// MockArtifactRepository is a testify mock of storage.ArtifactRepository.
type MockArtifactRepository struct {
	mock.Mock
}

// UploadArtifact provides a mock function with given fields: ctx, req
func (_m *MockArtifactRepository) UploadArtifact(ctx context.Context, req storage.UploadArtifactRequest) (*model.Artifact, error) {
	ret := _m.Called(ctx, req)

	var r0 *model.Artifact
	if rf, ok := ret.Get(0).(func(context.Context, storage.UploadArtifactRequest) *model.Artifact); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Artifact)
	}

	return r0, ret.Error(1)
}

// DownloadArtifact provides a mock function with given fields: ctx, name, destDir
func (_m *MockArtifactRepository) DownloadArtifact(ctx context.Context, name, destDir string) (*model.Artifact, error) {
	ret := _m.Called(ctx, name, destDir)

	var r0 *model.Artifact
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *model.Artifact); ok {
		r0 = rf(ctx, name, destDir)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Artifact)
	}

	return r0, ret.Error(1)
}

// MockStageRunRepository is a testify mock of storage.StageRunRepository.
type MockStageRunRepository struct {
	mock.Mock
}

// CreateStageRun provides a mock function with given fields: ctx, r
func (_m *MockStageRunRepository) CreateStageRun(ctx context.Context, r model.StageRun) error {
	ret := _m.Called(ctx, r)
	return ret.Error(0)
}

// ListStageRuns provides a mock function with given fields: ctx, key
func (_m *MockStageRunRepository) ListStageRuns(ctx context.Context, key string) ([]model.StageRun, error) {
	ret := _m.Called(ctx, key)

	var r0 []model.StageRun
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.StageRun)
	}

	return r0, ret.Error(1)
}
