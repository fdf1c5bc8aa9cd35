package buffer

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/RichardKnop/minirel/internal/storage"
)

// MockStore is a testify mock of storage.Store.
type MockStore struct {
	mock.Mock
}

func (_m *MockStore) BlockSize() int {
	ret := _m.Called()
	return ret.Get(0).(int)
}

func (_m *MockStore) ReadPage(ctx context.Context, fileID storage.FileID, pageNumber storage.PageNumber, out []byte) error {
	ret := _m.Called(ctx, fileID, pageNumber, out)
	return ret.Error(0)
}

func (_m *MockStore) WritePage(ctx context.Context, fileID storage.FileID, pageNumber storage.PageNumber, in []byte) error {
	ret := _m.Called(ctx, fileID, pageNumber, in)
	return ret.Error(0)
}

func (_m *MockStore) NumPages(ctx context.Context, fileID storage.FileID) (storage.PageNumber, error) {
	ret := _m.Called(ctx, fileID)
	return ret.Get(0).(storage.PageNumber), ret.Error(1)
}

func (_m *MockStore) CreateFile(ctx context.Context, name string, volatile bool) (storage.FileID, error) {
	ret := _m.Called(ctx, name, volatile)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockStore) DeleteFile(ctx context.Context, fileID storage.FileID) error {
	ret := _m.Called(ctx, fileID)
	return ret.Error(0)
}

func (_m *MockStore) Lookup(ctx context.Context, name string) (storage.FileInfo, error) {
	ret := _m.Called(ctx, name)
	return ret.Get(0).(storage.FileInfo), ret.Error(1)
}

func (_m *MockStore) Stat(ctx context.Context, fileID storage.FileID) (storage.FileInfo, error) {
	ret := _m.Called(ctx, fileID)
	return ret.Get(0).(storage.FileInfo), ret.Error(1)
}

func (_m *MockStore) ListFiles(ctx context.Context) ([]storage.FileInfo, error) {
	ret := _m.Called(ctx)
	var infos []storage.FileInfo
	if ret.Get(0) != nil {
		infos = ret.Get(0).([]storage.FileInfo)
	}
	return infos, ret.Error(1)
}

func (_m *MockStore) Close() error {
	ret := _m.Called()
	return ret.Error(0)
}

// MockPageWriterStore adds batched writes to MockStore.
type MockPageWriterStore struct {
	MockStore
}

func (_m *MockPageWriterStore) WritePages(ctx context.Context, pages []storage.Page) (int, error) {
	ret := _m.Called(ctx, pages)
	return ret.Int(0), ret.Error(1)
}
