package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/boltdb/bolt"
)

var (
	bucketNames = []byte("names")
	bucketFiles = []byte("files")
	bucketMeta  = []byte("meta")

	keyBlockSize = []byte("block_size")
)

// DiskStore keeps every logical file in its own bolt bucket. Page numbers
// are stored as big-endian keys so the cursor order is the page order and
// the last key gives the file length.
type DiskStore struct {
	db        *bolt.DB
	path      string
	blockSize int
}

type MountOptions struct {
	BlockSize int
	Timeout   time.Duration
	// InitialSize preallocates the memory map, see MakeStore.
	InitialSize int
}

// MakeStore creates a new backing file sized to hold sizeBytes of pages.
// It fails if the file already exists.
func MakeStore(path string, sizeBytes int, blockSize int) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("store %s: %w", path, os.ErrExist)
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:         time.Second,
		InitialMmapSize: sizeBytes,
	})
	if err != nil {
		return fmt.Errorf("error creating store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketNames, bucketFiles, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(blockSize))
		return tx.Bucket(bucketMeta).Put(keyBlockSize, buf)
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("error initializing store %s: %w", path, err)
	}
	return db.Close()
}

// Mount opens an existing store. Volatile files left behind by a previous
// process are purged.
func Mount(path string, opts MountOptions) (*DiskStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("error mounting store %s: %w", path, err)
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:         opts.Timeout,
		InitialMmapSize: opts.InitialSize,
	})
	if err != nil {
		return nil, fmt.Errorf("error mounting store %s: %w", path, err)
	}

	s := &DiskStore{db: db, path: path, blockSize: opts.BlockSize}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketNames, bucketFiles, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if stored := meta.Get(keyBlockSize); stored != nil {
			s.blockSize = int(binary.BigEndian.Uint32(stored))
		} else {
			if s.blockSize <= 0 {
				s.blockSize = DefaultBlockSize
			}
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, uint32(s.blockSize))
			if err := meta.Put(keyBlockSize, buf); err != nil {
				return err
			}
		}
		return purgeVolatile(tx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error mounting store %s: %w", path, err)
	}

	return s, nil
}

// Open mounts the store at path, creating it first when it does not exist.
func Open(path string, sizeBytes int, blockSize int) (*DiskStore, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := MakeStore(path, sizeBytes, blockSize); err != nil {
			return nil, err
		}
	}
	return Mount(path, MountOptions{BlockSize: blockSize, InitialSize: sizeBytes})
}

func purgeVolatile(tx *bolt.Tx) error {
	var volatile []FileInfo
	if err := tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
		info := unmarshalFileInfo(k, v)
		if info.Volatile {
			volatile = append(volatile, info)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, info := range volatile {
		if err := deleteFile(tx, info); err != nil {
			return err
		}
	}
	return nil
}

func (s *DiskStore) BlockSize() int {
	return s.blockSize
}

func (s *DiskStore) Path() string {
	return s.path
}

func (s *DiskStore) Close() error {
	if s.db == nil {
		return ErrNotMounted
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *DiskStore) ReadPage(ctx context.Context, fileID FileID, pageNumber PageNumber, out []byte) error {
	if err := checkBlock(out, s.blockSize); err != nil {
		return err
	}
	if s.db == nil {
		return ErrNotMounted
	}
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(fileBucketName(fileID))
		if b == nil {
			return fmt.Errorf("%w: file %d", ErrFileNotFound, fileID)
		}
		data := b.Get(pageKey(pageNumber))
		if data == nil {
			return fmt.Errorf("%w: file %d page %d", ErrPageOutOfRange, fileID, pageNumber)
		}
		// bolt values are only valid for the life of the transaction
		copy(out, data)
		return nil
	})
}

var _ PageWriter = (*DiskStore)(nil)

func (s *DiskStore) WritePage(ctx context.Context, fileID FileID, pageNumber PageNumber, in []byte) error {
	if err := checkBlock(in, s.blockSize); err != nil {
		return err
	}
	if s.db == nil {
		return ErrNotMounted
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(fileBucketName(fileID))
		if b == nil {
			return fmt.Errorf("%w: file %d", ErrFileNotFound, fileID)
		}
		if next := numPages(b); pageNumber > next {
			return fmt.Errorf("%w: cannot write page %d, file %d has %d pages", ErrPageOutOfRange, pageNumber, fileID, next)
		}
		data := make([]byte, len(in))
		copy(data, in)
		return b.Put(pageKey(pageNumber), data)
	})
}

// WritePages writes every page in one transaction, so a flush of many pages
// syncs the file once.
func (s *DiskStore) WritePages(ctx context.Context, pages []Page) (int, error) {
	for _, aPage := range pages {
		if err := checkBlock(aPage.Data, s.blockSize); err != nil {
			return 0, err
		}
	}
	if s.db == nil {
		return 0, ErrNotMounted
	}

	var (
		written int
		errs    []error
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, aPage := range pages {
			b := tx.Bucket(fileBucketName(aPage.FileID))
			if b == nil {
				errs = append(errs, fmt.Errorf("%w: file %d", ErrFileNotFound, aPage.FileID))
				continue
			}
			if next := numPages(b); aPage.PageNumber > next {
				errs = append(errs, fmt.Errorf("%w: cannot write page %d, file %d has %d pages", ErrPageOutOfRange, aPage.PageNumber, aPage.FileID, next))
				continue
			}
			data := make([]byte, len(aPage.Data))
			copy(data, aPage.Data)
			if err := b.Put(pageKey(aPage.PageNumber), data); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, errors.Join(errs...)
}

func (s *DiskStore) NumPages(ctx context.Context, fileID FileID) (PageNumber, error) {
	if s.db == nil {
		return 0, ErrNotMounted
	}
	var n PageNumber
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(fileBucketName(fileID))
		if b == nil {
			return fmt.Errorf("%w: file %d", ErrFileNotFound, fileID)
		}
		n = numPages(b)
		return nil
	})
	return n, err
}

func (s *DiskStore) CreateFile(ctx context.Context, name string, volatile bool) (FileID, error) {
	if err := validateFileName(name); err != nil {
		return 0, err
	}
	if s.db == nil {
		return 0, ErrNotMounted
	}
	var fileID FileID
	err := s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketNames)
		if names.Get([]byte(name)) != nil {
			return fmt.Errorf("%w: %s", ErrFileExists, name)
		}
		files := tx.Bucket(bucketFiles)
		seq, err := files.NextSequence()
		if err != nil {
			return err
		}
		fileID = FileID(seq)
		info := FileInfo{ID: fileID, Name: name, Volatile: volatile}
		if err := files.Put(fileIDKey(fileID), marshalFileInfo(info)); err != nil {
			return err
		}
		if err := names.Put([]byte(name), fileIDKey(fileID)); err != nil {
			return err
		}
		_, err = tx.CreateBucket(fileBucketName(fileID))
		return err
	})
	return fileID, err
}

func (s *DiskStore) DeleteFile(ctx context.Context, fileID FileID) error {
	if s.db == nil {
		return ErrNotMounted
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get(fileIDKey(fileID))
		if v == nil {
			return fmt.Errorf("%w: file %d", ErrFileNotFound, fileID)
		}
		return deleteFile(tx, unmarshalFileInfo(fileIDKey(fileID), v))
	})
}

func deleteFile(tx *bolt.Tx, info FileInfo) error {
	if err := tx.Bucket(bucketFiles).Delete(fileIDKey(info.ID)); err != nil {
		return err
	}
	if err := tx.Bucket(bucketNames).Delete([]byte(info.Name)); err != nil {
		return err
	}
	if err := tx.DeleteBucket(fileBucketName(info.ID)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return err
	}
	return nil
}

func (s *DiskStore) Lookup(ctx context.Context, name string) (FileInfo, error) {
	if s.db == nil {
		return FileInfo{}, ErrNotMounted
	}
	var info FileInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		k := tx.Bucket(bucketNames).Get([]byte(name))
		if k == nil {
			return fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		info = unmarshalFileInfo(k, tx.Bucket(bucketFiles).Get(k))
		return nil
	})
	return info, err
}

func (s *DiskStore) Stat(ctx context.Context, fileID FileID) (FileInfo, error) {
	if s.db == nil {
		return FileInfo{}, ErrNotMounted
	}
	var info FileInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get(fileIDKey(fileID))
		if v == nil {
			return fmt.Errorf("%w: file %d", ErrFileNotFound, fileID)
		}
		info = unmarshalFileInfo(fileIDKey(fileID), v)
		return nil
	})
	return info, err
}

func (s *DiskStore) ListFiles(ctx context.Context) ([]FileInfo, error) {
	if s.db == nil {
		return nil, ErrNotMounted
	}
	var infos []FileInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			infos = append(infos, unmarshalFileInfo(k, v))
			return nil
		})
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, err
}

func numPages(b *bolt.Bucket) PageNumber {
	k, _ := b.Cursor().Last()
	if k == nil {
		return 0
	}
	return PageNumber(binary.BigEndian.Uint32(k)) + 1
}

func fileBucketName(fileID FileID) []byte {
	return []byte(fmt.Sprintf("file_%d", fileID))
}

func fileIDKey(fileID FileID) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(fileID))
	return buf
}

func pageKey(pageNumber PageNumber) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(pageNumber))
	return buf
}

// file info value: volatile flag (1 byte) followed by the name
func marshalFileInfo(info FileInfo) []byte {
	buf := make([]byte, 1+len(info.Name))
	if info.Volatile {
		buf[0] = 1
	}
	copy(buf[1:], info.Name)
	return buf
}

func unmarshalFileInfo(key, value []byte) FileInfo {
	info := FileInfo{ID: FileID(binary.BigEndian.Uint32(key))}
	if len(value) > 0 {
		info.Volatile = value[0] == 1
		info.Name = string(value[1:])
	}
	return info
}
