package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryPath selects the in-memory store instead of a file on disk.
const MemoryPath = ":memory:"

type memFile struct {
	info  FileInfo
	pages [][]byte
}

// MemStore is a Store kept entirely in memory, nothing survives Close.
type MemStore struct {
	blockSize int
	nextID    FileID
	files     map[FileID]*memFile
	names     map[string]FileID
	closed    bool
	mu        sync.RWMutex
}

func NewMemStore(blockSize int) *MemStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &MemStore{
		blockSize: blockSize,
		files:     make(map[FileID]*memFile),
		names:     make(map[string]FileID),
	}
}

func (s *MemStore) BlockSize() int {
	return s.blockSize
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotMounted
	}
	s.closed = true
	return nil
}

func (s *MemStore) ReadPage(ctx context.Context, fileID FileID, pageNumber PageNumber, out []byte) error {
	if err := checkBlock(out, s.blockSize); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.file(fileID)
	if err != nil {
		return err
	}
	if int(pageNumber) >= len(f.pages) {
		return fmt.Errorf("%w: file %d page %d", ErrPageOutOfRange, fileID, pageNumber)
	}
	copy(out, f.pages[pageNumber])
	return nil
}

func (s *MemStore) WritePage(ctx context.Context, fileID FileID, pageNumber PageNumber, in []byte) error {
	if err := checkBlock(in, s.blockSize); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.file(fileID)
	if err != nil {
		return err
	}
	if int(pageNumber) > len(f.pages) {
		return fmt.Errorf("%w: cannot write page %d, file %d has %d pages", ErrPageOutOfRange, pageNumber, fileID, len(f.pages))
	}
	data := make([]byte, len(in))
	copy(data, in)
	if int(pageNumber) == len(f.pages) {
		f.pages = append(f.pages, data)
		return nil
	}
	f.pages[pageNumber] = data
	return nil
}

func (s *MemStore) NumPages(ctx context.Context, fileID FileID) (PageNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.file(fileID)
	if err != nil {
		return 0, err
	}
	return PageNumber(len(f.pages)), nil
}

func (s *MemStore) CreateFile(ctx context.Context, name string, volatile bool) (FileID, error) {
	if err := validateFileName(name); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrNotMounted
	}
	if _, ok := s.names[name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrFileExists, name)
	}
	s.nextID += 1
	s.files[s.nextID] = &memFile{info: FileInfo{ID: s.nextID, Name: name, Volatile: volatile}}
	s.names[name] = s.nextID
	return s.nextID, nil
}

func (s *MemStore) DeleteFile(ctx context.Context, fileID FileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.file(fileID)
	if err != nil {
		return err
	}
	delete(s.names, f.info.Name)
	delete(s.files, fileID)
	return nil
}

func (s *MemStore) Lookup(ctx context.Context, name string) (FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return FileInfo{}, ErrNotMounted
	}
	fileID, ok := s.names[name]
	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return s.files[fileID].info, nil
}

func (s *MemStore) Stat(ctx context.Context, fileID FileID) (FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.file(fileID)
	if err != nil {
		return FileInfo{}, err
	}
	return f.info, nil
}

func (s *MemStore) ListFiles(ctx context.Context) ([]FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrNotMounted
	}
	infos := make([]FileInfo, 0, len(s.files))
	for _, f := range s.files {
		infos = append(infos, f.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// must be called with lock held
func (s *MemStore) file(fileID FileID) (*memFile, error) {
	if s.closed {
		return nil, ErrNotMounted
	}
	f, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: file %d", ErrFileNotFound, fileID)
	}
	return f, nil
}
