package heap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/buffer"
	"github.com/RichardKnop/minirel/internal/record"
	"github.com/RichardKnop/minirel/internal/storage"
)

var (
	ErrNotHeapFile        = errors.New("not a heap file")
	ErrRecordNotFound     = errors.New("record not found")
	ErrRecordTooLarge     = errors.New("record too large for a page")
	ErrRecordSizeMismatch = errors.New("record size does not match file")
	ErrInvalidDescriptor  = errors.New("invalid record descriptor")
)

// ErrStopScan can be returned by a scan callback to end the scan early
// without an error.
var ErrStopScan = errors.New("stop scan")

// TempPrefix starts the name of every temporary relation.
const TempPrefix = "tmp_"

const headerPage storage.PageNumber = 0

// RecordID locates a record inside its heap file.
type RecordID struct {
	Page storage.PageNumber
	Slot int
}

func (r RecordID) String() string {
	return fmt.Sprintf("%d/%d", r.Page, r.Slot)
}

// Catalog manages heap files. Every page it touches goes through the
// buffer pool manager, volatile files live in the cache pool.
type Catalog struct {
	buf    *buffer.Manager
	pools  map[storage.FileID]buffer.PoolKind
	mu     sync.RWMutex
	logger *zap.Logger
}

func New(logger *zap.Logger, buf *buffer.Manager) *Catalog {
	return &Catalog{
		buf:    buf,
		pools:  make(map[storage.FileID]buffer.PoolKind),
		logger: logger,
	}
}

func (c *Catalog) Buffer() *buffer.Manager {
	return c.buf
}

func poolFor(volatile bool) buffer.PoolKind {
	if volatile {
		return buffer.Cache
	}
	return buffer.Persistent
}

// PoolOf returns the buffer pool holding pages of the file.
func (c *Catalog) PoolOf(ctx context.Context, fileID storage.FileID) (buffer.PoolKind, error) {
	c.mu.RLock()
	kind, ok := c.pools[fileID]
	c.mu.RUnlock()
	if ok {
		return kind, nil
	}

	info, err := c.buf.Store().Stat(ctx, fileID)
	if err != nil {
		return 0, err
	}
	kind = poolFor(info.Volatile)

	c.mu.Lock()
	c.pools[fileID] = kind
	c.mu.Unlock()

	return kind, nil
}

func validateDescriptor(desc record.Descriptor) error {
	if len(desc.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidDescriptor)
	}
	for _, aField := range desc.Fields {
		if aField.Name == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidDescriptor)
		}
		if aField.Type < record.Int || aField.Type > record.Datetime {
			return fmt.Errorf("%w: unknown type of field %s", ErrInvalidDescriptor, aField.Name)
		}
		if aField.Type == record.Varchar && aField.Capacity() < 1 {
			return fmt.Errorf("%w: VARCHAR field %s needs a positive length", ErrInvalidDescriptor, aField.Name)
		}
	}
	return nil
}

// CreateHeapFile creates the file and writes its header page.
func (c *Catalog) CreateHeapFile(ctx context.Context, name string, desc record.Descriptor, volatile bool) (storage.FileID, error) {
	if err := validateDescriptor(desc); err != nil {
		return 0, err
	}

	aHeader := Header{
		Volatile:   volatile,
		RecordSize: uint32(desc.RecordSize()),
		FirstFree:  headerPage + 1,
		Descriptor: desc,
	}
	if slotsPerPage(c.buf.BlockSize(), int(aHeader.RecordSize)) < 1 {
		return 0, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, aHeader.RecordSize)
	}
	if aHeader.Size() > uint64(c.buf.BlockSize()) {
		return 0, fmt.Errorf("%w: header of %s does not fit a page", ErrRecordTooLarge, name)
	}

	fileID, err := c.buf.Store().CreateFile(ctx, name, volatile)
	if err != nil {
		return 0, err
	}
	kind := poolFor(volatile)
	c.mu.Lock()
	c.pools[fileID] = kind
	c.mu.Unlock()

	if err := c.writeHeaderPage(ctx, kind, fileID, aHeader); err != nil {
		if deleteErr := c.DeleteHeapFile(ctx, fileID); deleteErr != nil {
			err = errors.Join(err, deleteErr)
		}
		return 0, err
	}

	c.logger.Sugar().With(
		"name", name,
		"file_id", fileID,
		"volatile", volatile,
		"record_size", aHeader.RecordSize,
	).Debug("created heap file")

	return fileID, nil
}

func (c *Catalog) writeHeaderPage(ctx context.Context, kind buffer.PoolKind, fileID storage.FileID, aHeader Header) error {
	addr, _, err := c.buf.AllocateAndLoad(ctx, kind, fileID)
	if err != nil {
		return err
	}
	if addr.PageNumber != headerPage {
		return fmt.Errorf("%w: file %d is not empty", ErrNotHeapFile, fileID)
	}
	return c.buf.WithPage(ctx, kind, addr, func(data []byte) (bool, error) {
		return true, aHeader.Marshal(data)
	})
}

// DeleteHeapFile drops the file and forgets its resident pages without
// writing them back.
func (c *Catalog) DeleteHeapFile(ctx context.Context, fileID storage.FileID) error {
	kind, err := c.PoolOf(ctx, fileID)
	if err != nil {
		return err
	}
	if err := c.buf.ForgetFile(kind, fileID); err != nil {
		return err
	}
	if err := c.buf.Store().DeleteFile(ctx, fileID); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.pools, fileID)
	c.mu.Unlock()

	c.logger.Sugar().With("file_id", fileID).Debug("deleted heap file")

	return nil
}

func (c *Catalog) GetFileID(ctx context.Context, name string) (storage.FileID, error) {
	info, err := c.buf.Store().Lookup(ctx, name)
	if err != nil {
		return 0, err
	}
	return info.ID, nil
}

func (c *Catalog) Exists(ctx context.Context, name string) bool {
	_, err := c.buf.Store().Lookup(ctx, name)
	return err == nil
}

func (c *Catalog) Name(ctx context.Context, fileID storage.FileID) (string, error) {
	info, err := c.buf.Store().Stat(ctx, fileID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

// Tables lists user visible heap files, temporary relations excluded.
func (c *Catalog) Tables(ctx context.Context) ([]storage.FileInfo, error) {
	infos, err := c.buf.Store().ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]storage.FileInfo, 0, len(infos))
	for _, info := range infos {
		if info.Volatile && strings.HasPrefix(info.Name, TempPrefix) {
			continue
		}
		tables = append(tables, info)
	}
	return tables, nil
}

func (c *Catalog) ReadHeader(ctx context.Context, fileID storage.FileID) (Header, error) {
	kind, err := c.PoolOf(ctx, fileID)
	if err != nil {
		return Header{}, err
	}
	return c.readHeader(ctx, kind, fileID)
}

func (c *Catalog) readHeader(ctx context.Context, kind buffer.PoolKind, fileID storage.FileID) (Header, error) {
	var aHeader Header
	err := c.buf.WithPage(ctx, kind, buffer.PageAddress{FileID: fileID, PageNumber: headerPage}, func(data []byte) (bool, error) {
		if _, err := aHeader.Unmarshal(data); err != nil {
			return false, fmt.Errorf("file %d: %w", fileID, err)
		}
		return false, nil
	})
	return aHeader, err
}

func (c *Catalog) updateHeader(ctx context.Context, kind buffer.PoolKind, fileID storage.FileID, fn func(*Header)) error {
	return c.buf.WithPage(ctx, kind, buffer.PageAddress{FileID: fileID, PageNumber: headerPage}, func(data []byte) (bool, error) {
		var aHeader Header
		if _, err := aHeader.Unmarshal(data); err != nil {
			return false, fmt.Errorf("file %d: %w", fileID, err)
		}
		fn(&aHeader)
		return true, aHeader.Marshal(data)
	})
}

func (c *Catalog) GetRecordDescriptor(ctx context.Context, fileID storage.FileID) (record.Descriptor, error) {
	aHeader, err := c.ReadHeader(ctx, fileID)
	if err != nil {
		return record.Descriptor{}, err
	}
	return aHeader.Descriptor, nil
}

func (c *Catalog) GetRecordByteSize(ctx context.Context, fileID storage.FileID) (int, error) {
	aHeader, err := c.ReadHeader(ctx, fileID)
	if err != nil {
		return 0, err
	}
	return int(aHeader.RecordSize), nil
}

func (c *Catalog) RecordCount(ctx context.Context, fileID storage.FileID) (uint64, error) {
	aHeader, err := c.ReadHeader(ctx, fileID)
	if err != nil {
		return 0, err
	}
	return aHeader.RecordCount, nil
}

// InsertRecord stores an encoded record in the first page with a free slot,
// allocating a new page when every page is full.
func (c *Catalog) InsertRecord(ctx context.Context, fileID storage.FileID, data []byte) (RecordID, error) {
	kind, err := c.PoolOf(ctx, fileID)
	if err != nil {
		return RecordID{}, err
	}
	aHeader, err := c.readHeader(ctx, kind, fileID)
	if err != nil {
		return RecordID{}, err
	}
	recordSize := int(aHeader.RecordSize)
	if len(data) != recordSize {
		return RecordID{}, fmt.Errorf("%w: got %d bytes, file %d expects %d", ErrRecordSizeMismatch, len(data), fileID, recordSize)
	}

	numPages, err := c.buf.Store().NumPages(ctx, fileID)
	if err != nil {
		return RecordID{}, err
	}

	var (
		rid  = RecordID{Slot: -1}
		full bool
	)
	for pageNumber := max(aHeader.FirstFree, headerPage+1); pageNumber < numPages; pageNumber++ {
		err := c.buf.WithPage(ctx, kind, buffer.PageAddress{FileID: fileID, PageNumber: pageNumber}, func(buf []byte) (bool, error) {
			aPage := dataPage{buf: buf, recordSize: recordSize}
			slot := aPage.insert(data)
			if slot < 0 {
				return false, nil
			}
			rid = RecordID{Page: pageNumber, Slot: slot}
			full = aPage.full()
			return true, nil
		})
		if err != nil {
			return RecordID{}, err
		}
		if rid.Slot >= 0 {
			break
		}
	}

	if rid.Slot < 0 {
		addr, _, err := c.buf.AllocateAndLoad(ctx, kind, fileID)
		if err != nil {
			return RecordID{}, err
		}
		err = c.buf.WithPage(ctx, kind, addr, func(buf []byte) (bool, error) {
			aPage := initDataPage(buf, recordSize)
			rid = RecordID{Page: addr.PageNumber, Slot: aPage.insert(data)}
			full = aPage.full()
			return true, nil
		})
		if err != nil {
			return RecordID{}, err
		}
	}

	err = c.updateHeader(ctx, kind, fileID, func(h *Header) {
		h.RecordCount += 1
		h.FirstFree = rid.Page
		if full {
			h.FirstFree = rid.Page + 1
		}
	})
	if err != nil {
		return RecordID{}, err
	}

	return rid, nil
}

func (c *Catalog) DeleteRecord(ctx context.Context, fileID storage.FileID, rid RecordID) error {
	kind, err := c.PoolOf(ctx, fileID)
	if err != nil {
		return err
	}
	aHeader, err := c.readHeader(ctx, kind, fileID)
	if err != nil {
		return err
	}
	if err := c.checkRecordID(ctx, fileID, rid); err != nil {
		return err
	}

	err = c.buf.WithPage(ctx, kind, buffer.PageAddress{FileID: fileID, PageNumber: rid.Page}, func(buf []byte) (bool, error) {
		aPage := dataPage{buf: buf, recordSize: int(aHeader.RecordSize)}
		if !aPage.occupied(rid.Slot) {
			return false, fmt.Errorf("%w: %s in file %d", ErrRecordNotFound, rid, fileID)
		}
		aPage.remove(rid.Slot)
		return true, nil
	})
	if err != nil {
		return err
	}

	return c.updateHeader(ctx, kind, fileID, func(h *Header) {
		h.RecordCount -= 1
		h.FirstFree = min(h.FirstFree, rid.Page)
	})
}

// UpdateRecord overwrites a record in place.
func (c *Catalog) UpdateRecord(ctx context.Context, fileID storage.FileID, rid RecordID, data []byte) error {
	kind, err := c.PoolOf(ctx, fileID)
	if err != nil {
		return err
	}
	aHeader, err := c.readHeader(ctx, kind, fileID)
	if err != nil {
		return err
	}
	if len(data) != int(aHeader.RecordSize) {
		return fmt.Errorf("%w: got %d bytes, file %d expects %d", ErrRecordSizeMismatch, len(data), fileID, aHeader.RecordSize)
	}
	if err := c.checkRecordID(ctx, fileID, rid); err != nil {
		return err
	}

	return c.buf.WithPage(ctx, kind, buffer.PageAddress{FileID: fileID, PageNumber: rid.Page}, func(buf []byte) (bool, error) {
		aPage := dataPage{buf: buf, recordSize: int(aHeader.RecordSize)}
		if !aPage.occupied(rid.Slot) {
			return false, fmt.Errorf("%w: %s in file %d", ErrRecordNotFound, rid, fileID)
		}
		copy(aPage.slot(rid.Slot), data)
		return true, nil
	})
}

// GetRecord returns a copy of the encoded record.
func (c *Catalog) GetRecord(ctx context.Context, fileID storage.FileID, rid RecordID) ([]byte, error) {
	kind, err := c.PoolOf(ctx, fileID)
	if err != nil {
		return nil, err
	}
	aHeader, err := c.readHeader(ctx, kind, fileID)
	if err != nil {
		return nil, err
	}
	if err := c.checkRecordID(ctx, fileID, rid); err != nil {
		return nil, err
	}

	var out []byte
	err = c.buf.WithPage(ctx, kind, buffer.PageAddress{FileID: fileID, PageNumber: rid.Page}, func(buf []byte) (bool, error) {
		aPage := dataPage{buf: buf, recordSize: int(aHeader.RecordSize)}
		if !aPage.occupied(rid.Slot) {
			return false, fmt.Errorf("%w: %s in file %d", ErrRecordNotFound, rid, fileID)
		}
		out = append([]byte(nil), aPage.slot(rid.Slot)...)
		return false, nil
	})
	return out, err
}

func (c *Catalog) checkRecordID(ctx context.Context, fileID storage.FileID, rid RecordID) error {
	if rid.Page == headerPage {
		return fmt.Errorf("%w: %s in file %d", ErrRecordNotFound, rid, fileID)
	}
	numPages, err := c.buf.Store().NumPages(ctx, fileID)
	if err != nil {
		return err
	}
	if rid.Page >= numPages {
		return fmt.Errorf("%w: %s in file %d", ErrRecordNotFound, rid, fileID)
	}
	return nil
}

// Scan calls fn for every record in page order. Records of a page are
// copied while it is pinned and fn runs after the page is released, so fn
// is free to modify this or any other heap file. Pages appended during the
// scan are not visited.
func (c *Catalog) Scan(ctx context.Context, fileID storage.FileID, fn func(rid RecordID, data []byte) error) error {
	kind, err := c.PoolOf(ctx, fileID)
	if err != nil {
		return err
	}
	aHeader, err := c.readHeader(ctx, kind, fileID)
	if err != nil {
		return err
	}
	numPages, err := c.buf.Store().NumPages(ctx, fileID)
	if err != nil {
		return err
	}

	type scanned struct {
		rid  RecordID
		data []byte
	}

	recordSize := int(aHeader.RecordSize)
	for pageNumber := headerPage + 1; pageNumber < numPages; pageNumber++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []scanned
		err := c.buf.WithPage(ctx, kind, buffer.PageAddress{FileID: fileID, PageNumber: pageNumber}, func(buf []byte) (bool, error) {
			aPage := dataPage{buf: buf, recordSize: recordSize}
			batch = make([]scanned, 0, aPage.used())
			for slot := range aPage.capacity() {
				if !aPage.occupied(slot) {
					continue
				}
				batch = append(batch, scanned{
					rid:  RecordID{Page: pageNumber, Slot: slot},
					data: append([]byte(nil), aPage.slot(slot)...),
				})
			}
			return false, nil
		})
		if err != nil {
			return err
		}

		for _, aRecord := range batch {
			if err := fn(aRecord.rid, aRecord.data); err != nil {
				if errors.Is(err, ErrStopScan) {
					return nil
				}
				return err
			}
		}
	}

	return nil
}
