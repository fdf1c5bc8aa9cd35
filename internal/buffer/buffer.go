package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/storage"
)

var (
	// ErrPoolExhausted means every slot of the pool is pinned. Callers must
	// release pins before asking for another page.
	ErrPoolExhausted = errors.New("buffer pool exhausted, all slots are pinned")
	// ErrNotFound means the page is not resident in the pool.
	ErrNotFound    = errors.New("page not resident in buffer pool")
	ErrUnknownPool = errors.New("unknown buffer pool")
)

type PoolKind int

const (
	// Persistent holds pages of durable tables.
	Persistent PoolKind = iota + 1
	// Cache holds pages of volatile tables.
	Cache
)

func (k PoolKind) String() string {
	switch k {
	case Persistent:
		return "persistent"
	case Cache:
		return "cache"
	default:
		return "unknown"
	}
}

// PageAddress is the unique identity of a page within the whole store.
type PageAddress struct {
	FileID     storage.FileID
	PageNumber storage.PageNumber
}

func (a PageAddress) String() string {
	return fmt.Sprintf("%d:%d", a.FileID, a.PageNumber)
}

// Block is one page worth of bytes plus the address it currently holds.
type Block struct {
	Address PageAddress
	Data    []byte
}

// emptyRecency marks an empty slot. The logical clock starts at 1 so no
// occupied slot ever carries it.
const emptyRecency uint64 = 0

type slot struct {
	block   Block
	pinned  bool
	dirty   bool
	recency uint64
}

func (s *slot) empty() bool {
	return s.recency == emptyRecency
}

func (s *slot) reset() {
	s.block.Address = PageAddress{}
	s.pinned = false
	s.dirty = false
	s.recency = emptyRecency
}

type pool struct {
	kind     PoolKind
	slots    []slot
	resident map[PageAddress]int
	occupied int
	mu       sync.Mutex
}

func newPool(kind PoolKind, capacity, blockSize int) *pool {
	p := &pool{
		kind:     kind,
		slots:    make([]slot, capacity),
		resident: make(map[PageAddress]int, capacity),
	}
	for i := range p.slots {
		p.slots[i].block.Data = make([]byte, blockSize)
	}
	return p
}

type Options struct {
	PersistentBlocks int
	CacheBlocks      int
	// Registerer receives the buffer pool metrics, nil keeps them unregistered.
	Registerer prometheus.Registerer
}

// Manager multiplexes two fixed-size pools of page slots over the store.
//
// Pinning is a boolean, not a counter: pinning a page twice and unpinning
// it once leaves it unpinned.
type Manager struct {
	store      storage.Store
	persistent *pool
	cache      *pool
	clock      atomic.Uint64
	metrics    *Metrics
	logger     *zap.Logger
}

func New(logger *zap.Logger, store storage.Store, opts Options) (*Manager, error) {
	if opts.PersistentBlocks <= 0 || opts.CacheBlocks <= 0 {
		return nil, fmt.Errorf("buffer pools need at least one block each, got persistent=%d cache=%d", opts.PersistentBlocks, opts.CacheBlocks)
	}
	m := &Manager{
		store:      store,
		persistent: newPool(Persistent, opts.PersistentBlocks, store.BlockSize()),
		cache:      newPool(Cache, opts.CacheBlocks, store.BlockSize()),
		metrics:    NewMetrics(opts.Registerer),
		logger:     logger,
	}

	logger.Sugar().With(
		"persistent_blocks", opts.PersistentBlocks,
		"cache_blocks", opts.CacheBlocks,
		"block_size", store.BlockSize(),
	).Debug("initialized buffer pools")

	return m, nil
}

func (m *Manager) Store() storage.Store {
	return m.store
}

func (m *Manager) BlockSize() int {
	return m.store.BlockSize()
}

func (m *Manager) pool(kind PoolKind) (*pool, error) {
	switch kind {
	case Persistent:
		return m.persistent, nil
	case Cache:
		return m.cache, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPool, kind)
	}
}

// tick advances the logical clock used as the recency marker.
func (m *Manager) tick() uint64 {
	return m.clock.Add(1)
}

// Fetch makes the page resident and returns its slot index. A resident page
// only has its recency refreshed. Otherwise the page is loaded into a free
// slot, or into the slot of the least recently used unpinned page.
func (m *Manager) Fetch(ctx context.Context, kind PoolKind, addr PageAddress) (int, error) {
	p, err := m.pool(kind)
	if err != nil {
		return -1, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	return m.fetch(ctx, p, addr)
}

// must be called with pool lock held
func (m *Manager) fetch(ctx context.Context, p *pool, addr PageAddress) (int, error) {
	if idx, ok := p.resident[addr]; ok {
		p.slots[idx].recency = m.tick()
		m.metrics.hits.WithLabelValues(p.kind.String()).Inc()
		return idx, nil
	}
	m.metrics.misses.WithLabelValues(p.kind.String()).Inc()

	var idx int
	if p.occupied < len(p.slots) {
		idx = p.firstEmpty()
	} else {
		idx = p.victim()
		if idx < 0 {
			return -1, fmt.Errorf("%w: %s pool, fetching page %s", ErrPoolExhausted, p.kind, addr)
		}
		if err := m.evict(ctx, p, idx); err != nil {
			return -1, err
		}
	}

	aSlot := &p.slots[idx]
	if err := m.store.ReadPage(ctx, addr.FileID, addr.PageNumber, aSlot.block.Data); err != nil {
		return -1, fmt.Errorf("error loading page %s: %w", addr, err)
	}
	aSlot.block.Address = addr
	aSlot.pinned = false
	aSlot.dirty = false
	aSlot.recency = m.tick()
	p.resident[addr] = idx
	p.occupied += 1
	m.metrics.occupied.WithLabelValues(p.kind.String()).Set(float64(p.occupied))

	m.logger.Sugar().With(
		"pool", p.kind.String(),
		"page", addr.String(),
		"slot", idx,
	).Debug("loaded page")

	return idx, nil
}

// evict writes the victim back when dirty and empties its slot.
func (m *Manager) evict(ctx context.Context, p *pool, idx int) error {
	victim := &p.slots[idx]
	addr := victim.block.Address
	if victim.dirty {
		if err := m.writeBack(ctx, p, victim); err != nil {
			return fmt.Errorf("error writing back evicted page %s: %w", addr, err)
		}
	}
	p.release(idx)
	m.metrics.evictions.WithLabelValues(p.kind.String()).Inc()
	m.metrics.occupied.WithLabelValues(p.kind.String()).Set(float64(p.occupied))

	m.logger.Sugar().With(
		"pool", p.kind.String(),
		"page", addr.String(),
		"slot", idx,
	).Debug("evicted page")

	return nil
}

func (m *Manager) writeBack(ctx context.Context, p *pool, aSlot *slot) error {
	addr := aSlot.block.Address
	if err := m.store.WritePage(ctx, addr.FileID, addr.PageNumber, aSlot.block.Data); err != nil {
		return err
	}
	aSlot.dirty = false
	m.metrics.writeBacks.WithLabelValues(p.kind.String()).Inc()
	return nil
}

// writeBackAll flushes the dirty slots with a single batched write.
func (m *Manager) writeBackAll(ctx context.Context, p *pool, writer storage.PageWriter, dirty []*slot) error {
	pages := make([]storage.Page, 0, len(dirty))
	for _, aSlot := range dirty {
		pages = append(pages, storage.Page{
			FileID:     aSlot.block.Address.FileID,
			PageNumber: aSlot.block.Address.PageNumber,
			Data:       aSlot.block.Data,
		})
	}

	written, err := writer.WritePages(ctx, pages)
	m.metrics.writeBacks.WithLabelValues(p.kind.String()).Add(float64(written))

	m.logger.Sugar().With(
		"pool", p.kind,
		"pages", len(pages),
		"written", written,
	).Debug("flushed dirty pages")

	if err != nil {
		return fmt.Errorf("error flushing %s pool: %w", p.kind, err)
	}
	for _, aSlot := range dirty {
		aSlot.dirty = false
	}
	return nil
}

// FindResident returns the slot of a resident page without doing any I/O.
func (m *Manager) FindResident(kind PoolKind, addr PageAddress) (int, error) {
	p, err := m.pool(kind)
	if err != nil {
		return -1, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.find(addr)
}

func (m *Manager) Pin(kind PoolKind, addr PageAddress) error {
	return m.setPin(kind, addr, true)
}

func (m *Manager) Unpin(kind PoolKind, addr PageAddress) error {
	return m.setPin(kind, addr, false)
}

func (m *Manager) setPin(kind PoolKind, addr PageAddress, pinned bool) error {
	p, err := m.pool(kind)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := p.find(addr)
	if err != nil {
		return err
	}
	p.slots[idx].pinned = pinned
	return nil
}

// MarkDirty records that the resident page was modified in place.
func (m *Manager) MarkDirty(kind PoolKind, addr PageAddress) error {
	p, err := m.pool(kind)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := p.find(addr)
	if err != nil {
		return err
	}
	p.slots[idx].dirty = true
	return nil
}

// Flush writes a dirty resident page back to the store. Clean pages are left alone.
func (m *Manager) Flush(ctx context.Context, kind PoolKind, addr PageAddress) error {
	p, err := m.pool(kind)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := p.find(addr)
	if err != nil {
		return err
	}
	if !p.slots[idx].dirty {
		return nil
	}
	if err := m.writeBack(ctx, p, &p.slots[idx]); err != nil {
		return fmt.Errorf("error flushing page %s: %w", addr, err)
	}
	return nil
}

// AllocateAndLoad appends a zero-filled page to the file and makes it resident.
func (m *Manager) AllocateAndLoad(ctx context.Context, kind PoolKind, fileID storage.FileID) (PageAddress, int, error) {
	p, err := m.pool(kind)
	if err != nil {
		return PageAddress{}, -1, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// Check before touching the store, the load below must not run out of victims
	if !p.hasUnpinned() {
		return PageAddress{}, -1, fmt.Errorf("%w: %s pool, allocating page for file %d", ErrPoolExhausted, p.kind, fileID)
	}

	next, err := m.store.NumPages(ctx, fileID)
	if err != nil {
		return PageAddress{}, -1, err
	}
	addr := PageAddress{FileID: fileID, PageNumber: next}
	if err := m.store.WritePage(ctx, fileID, next, make([]byte, m.store.BlockSize())); err != nil {
		return PageAddress{}, -1, fmt.Errorf("error allocating page %s: %w", addr, err)
	}

	idx, err := m.fetch(ctx, p, addr)
	if err != nil {
		return PageAddress{}, -1, err
	}
	return addr, idx, nil
}

// EvictAndForget drops a resident page without writing it back, even when
// dirty. Used when the owning file is being deleted.
func (m *Manager) EvictAndForget(kind PoolKind, addr PageAddress) error {
	p, err := m.pool(kind)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := p.find(addr)
	if err != nil {
		return err
	}
	p.release(idx)
	m.metrics.occupied.WithLabelValues(p.kind.String()).Set(float64(p.occupied))
	return nil
}

// ForgetFile drops every resident page of the file from the pool.
func (m *Manager) ForgetFile(kind PoolKind, fileID storage.FileID) error {
	p, err := m.pool(kind)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for addr, idx := range p.resident {
		if addr.FileID == fileID {
			p.release(idx)
		}
	}
	m.metrics.occupied.WithLabelValues(p.kind.String()).Set(float64(p.occupied))
	return nil
}

// Data returns the bytes of the page held in the slot. The page should be
// pinned for as long as the slice is used.
func (m *Manager) Data(kind PoolKind, idx int) []byte {
	p, err := m.pool(kind)
	if err != nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx < 0 || idx >= len(p.slots) || p.slots[idx].empty() {
		return nil
	}
	return p.slots[idx].block.Data
}

// WithPage fetches and pins the page, runs fn on its bytes and unpins it on
// every exit path. The page is marked dirty when fn reports a modification.
func (m *Manager) WithPage(ctx context.Context, kind PoolKind, addr PageAddress, fn func(data []byte) (bool, error)) error {
	idx, err := m.Fetch(ctx, kind, addr)
	if err != nil {
		return err
	}
	if err := m.Pin(kind, addr); err != nil {
		return err
	}
	defer m.Unpin(kind, addr)

	dirty, err := fn(m.Data(kind, idx))
	if dirty {
		if markErr := m.MarkDirty(kind, addr); markErr != nil {
			return markErr
		}
	}
	return err
}

func (m *Manager) Occupied(kind PoolKind) int {
	p, err := m.pool(kind)
	if err != nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.occupied
}

func (m *Manager) Capacity(kind PoolKind) int {
	p, err := m.pool(kind)
	if err != nil {
		return 0
	}
	return len(p.slots)
}

// Shutdown unpins and flushes every occupied slot of both pools, releases
// the slots and unmounts the store. Pins left behind by callers are
// tolerated.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, p := range []*pool{m.persistent, m.cache} {
		if err := m.squash(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error unmounting store: %w", err))
	}

	m.logger.Debug("buffer pools shut down")

	return errors.Join(errs...)
}

func (m *Manager) squash(ctx context.Context, p *pool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var dirty []*slot
	for idx := range p.slots {
		aSlot := &p.slots[idx]
		if aSlot.empty() {
			continue
		}
		aSlot.pinned = false
		if aSlot.dirty {
			dirty = append(dirty, aSlot)
		}
	}

	var errs []error
	if writer, ok := m.store.(storage.PageWriter); ok && len(dirty) > 1 {
		if err := m.writeBackAll(ctx, p, writer, dirty); err != nil {
			errs = append(errs, err)
		}
	} else {
		for _, aSlot := range dirty {
			if err := m.writeBack(ctx, p, aSlot); err != nil {
				errs = append(errs, fmt.Errorf("error flushing page %s: %w", aSlot.block.Address, err))
			}
		}
	}

	for idx := range p.slots {
		if !p.slots[idx].empty() {
			p.release(idx)
		}
	}
	m.metrics.occupied.WithLabelValues(p.kind.String()).Set(0)
	return errors.Join(errs...)
}

func (p *pool) find(addr PageAddress) (int, error) {
	idx, ok := p.resident[addr]
	if !ok {
		return -1, fmt.Errorf("%w: %s pool, page %s", ErrNotFound, p.kind, addr)
	}
	return idx, nil
}

func (p *pool) firstEmpty() int {
	for idx := range p.slots {
		if p.slots[idx].empty() {
			return idx
		}
	}
	return -1
}

// victim picks the unpinned slot with the smallest recency, lowest index on ties.
func (p *pool) victim() int {
	victim := -1
	for idx := range p.slots {
		aSlot := &p.slots[idx]
		if aSlot.empty() || aSlot.pinned {
			continue
		}
		if victim < 0 || aSlot.recency < p.slots[victim].recency {
			victim = idx
		}
	}
	return victim
}

func (p *pool) hasUnpinned() bool {
	for idx := range p.slots {
		if !p.slots[idx].pinned {
			return true
		}
	}
	return false
}

func (p *pool) release(idx int) {
	delete(p.resident, p.slots[idx].block.Address)
	p.slots[idx].reset()
	p.occupied -= 1
}
