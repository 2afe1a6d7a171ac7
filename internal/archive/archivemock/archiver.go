package archivemock

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockArchiver is a testify mock of archive.Archiver.
type MockArchiver struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, archivePath, baseDir, files
func (_m *MockArchiver) Create(ctx context.Context, archivePath, baseDir string, files []string) error {
	ret := _m.Called(ctx, archivePath, baseDir, files)

	if rf, ok := ret.Get(0).(func(context.Context, string, string, []string) error); ok {
		return rf(ctx, archivePath, baseDir, files)
	}
	return ret.Error(0)
}

// Extract provides a mock function with given fields: ctx, archivePath, destDir
func (_m *MockArchiver) Extract(ctx context.Context, archivePath, destDir string) error {
	ret := _m.Called(ctx, archivePath, destDir)

	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		return rf(ctx, archivePath, destDir)
	}
	return ret.Error(0)
}
