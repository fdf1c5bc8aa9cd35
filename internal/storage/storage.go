package storage

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DefaultBlockSize is the size of one page on the block device.
	DefaultBlockSize = 4096
	// MaxFileNameLength bounds logical file names, mostly table names.
	MaxFileNameLength = 255
)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrFileExists      = errors.New("file already exists")
	ErrPageOutOfRange  = errors.New("page out of range")
	ErrInvalidFileName = errors.New("invalid file name")
	ErrBadBlockSize    = errors.New("buffer size does not match block size")
	ErrNotMounted      = errors.New("store is not mounted")
)

// FileID identifies a logical file inside the store.
type FileID uint32

// PageNumber is the position of a page inside a logical file, starting at 0.
type PageNumber uint32

type FileInfo struct {
	ID       FileID
	Name     string
	Volatile bool
}

// Store is the block device the buffer pool sits on. A store holds many
// logical files, each an ordered sequence of fixed-size pages. Pages are
// allocated densely: writing page NumPages() appends a page, writing past
// it is an error.
type Store interface {
	BlockSize() int
	ReadPage(ctx context.Context, fileID FileID, pageNumber PageNumber, out []byte) error
	WritePage(ctx context.Context, fileID FileID, pageNumber PageNumber, in []byte) error
	NumPages(ctx context.Context, fileID FileID) (PageNumber, error)
	CreateFile(ctx context.Context, name string, volatile bool) (FileID, error)
	DeleteFile(ctx context.Context, fileID FileID) error
	Lookup(ctx context.Context, name string) (FileInfo, error)
	Stat(ctx context.Context, fileID FileID) (FileInfo, error)
	ListFiles(ctx context.Context) ([]FileInfo, error)
	Close() error
}

// Page is one entry of a batched write.
type Page struct {
	FileID     FileID
	PageNumber PageNumber
	Data       []byte
}

// PageWriter is implemented by stores that write many pages at once. A page
// that fails does not stop the others, the count of written pages is returned
// with the joined errors.
type PageWriter interface {
	WritePages(ctx context.Context, pages []Page) (int, error)
}

func validateFileName(name string) error {
	if name == "" || len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return nil
}

func checkBlock(buf []byte, blockSize int) error {
	if len(buf) != blockSize {
		return fmt.Errorf("%w: got %d, expected %d", ErrBadBlockSize, len(buf), blockSize)
	}
	return nil
}
