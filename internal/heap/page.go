package heap

import (
	"encoding/binary"

	"github.com/RichardKnop/minirel/pkg/bitwise"
)

// dataPage is a view over the bytes of a data page:
//
//	capacity(2) used(2) bitmap(ceil(capacity/8)) slot[capacity]
type dataPage struct {
	buf        []byte
	recordSize int
}

const dataPageHeaderSize = 4

// slotsPerPage is the largest slot count whose bitmap and slots fit the block.
func slotsPerPage(blockSize, recordSize int) int {
	if recordSize < 1 {
		recordSize = 1
	}
	capacity := (blockSize - dataPageHeaderSize) / recordSize
	for capacity > 0 && dataPageHeaderSize+bitwise.Size(capacity)+capacity*recordSize > blockSize {
		capacity -= 1
	}
	return min(capacity, 0xffff)
}

func initDataPage(buf []byte, recordSize int) dataPage {
	clear(buf)
	binary.LittleEndian.PutUint16(buf[0:], uint16(slotsPerPage(len(buf), recordSize)))
	return dataPage{buf: buf, recordSize: recordSize}
}

func (p dataPage) capacity() int {
	return int(binary.LittleEndian.Uint16(p.buf[0:]))
}

func (p dataPage) used() int {
	return int(binary.LittleEndian.Uint16(p.buf[2:]))
}

func (p dataPage) setUsed(n int) {
	binary.LittleEndian.PutUint16(p.buf[2:], uint16(n))
}

func (p dataPage) full() bool {
	return p.used() >= p.capacity()
}

func (p dataPage) bitmap() []byte {
	return p.buf[dataPageHeaderSize : dataPageHeaderSize+bitwise.Size(p.capacity())]
}

func (p dataPage) occupied(slot int) bool {
	return slot >= 0 && slot < p.capacity() && bitwise.IsSet(p.bitmap(), slot)
}

func (p dataPage) slot(slot int) []byte {
	offset := dataPageHeaderSize + bitwise.Size(p.capacity()) + slot*p.recordSize
	return p.buf[offset : offset+p.recordSize]
}

// insert stores data in the first free slot and returns its index, or -1
// when the page is full.
func (p dataPage) insert(data []byte) int {
	slot := bitwise.FirstUnset(p.bitmap(), p.capacity())
	if slot < 0 {
		return -1
	}
	copy(p.slot(slot), data)
	bitwise.Set(p.bitmap(), slot)
	p.setUsed(p.used() + 1)
	return slot
}

func (p dataPage) remove(slot int) {
	bitwise.Unset(p.bitmap(), slot)
	clear(p.slot(slot))
	p.setUsed(p.used() - 1)
}
