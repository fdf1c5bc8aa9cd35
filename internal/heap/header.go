package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/RichardKnop/minirel/internal/record"
	"github.com/RichardKnop/minirel/internal/storage"
)

const headerMagic = "MRHF"

// Header lives in page 0 of every heap file.
type Header struct {
	Volatile    bool
	RecordSize  uint32
	RecordCount uint64
	// FirstFree is the lowest data page that may have a free slot.
	FirstFree  storage.PageNumber
	Descriptor record.Descriptor
}

// magic(4) volatile(1) pad(3) record size(4) record count(8) first free(4) field count(2)
const headerFixedSize = 4 + 1 + 3 + 4 + 8 + 4 + 2

func (h *Header) Size() uint64 {
	size := uint64(headerFixedSize)
	for _, aField := range h.Descriptor.Fields {
		// name length(1) name type(1) size(4)
		size += 1 + uint64(len(aField.Name)) + 1 + 4
	}
	return size
}

func (h *Header) Marshal(buf []byte) error {
	if h.Size() > uint64(len(buf)) {
		return fmt.Errorf("%w: header needs %d bytes, page has %d", ErrRecordTooLarge, h.Size(), len(buf))
	}

	i := 0
	copy(buf[i:], headerMagic)
	i += 4

	buf[i] = 0
	if h.Volatile {
		buf[i] = 1
	}
	i += 4

	binary.LittleEndian.PutUint32(buf[i:], h.RecordSize)
	i += 4
	binary.LittleEndian.PutUint64(buf[i:], h.RecordCount)
	i += 8
	binary.LittleEndian.PutUint32(buf[i:], uint32(h.FirstFree))
	i += 4
	binary.LittleEndian.PutUint16(buf[i:], uint16(len(h.Descriptor.Fields)))
	i += 2

	for _, aField := range h.Descriptor.Fields {
		if len(aField.Name) > 255 {
			return fmt.Errorf("field name too long: %s", aField.Name)
		}
		buf[i] = byte(len(aField.Name))
		i += 1
		copy(buf[i:], aField.Name)
		i += len(aField.Name)
		buf[i] = byte(aField.Type)
		i += 1
		binary.LittleEndian.PutUint32(buf[i:], uint32(aField.Size))
		i += 4
	}

	return nil
}

func (h *Header) Unmarshal(buf []byte) (uint64, error) {
	if len(buf) < headerFixedSize || string(buf[0:4]) != headerMagic {
		return 0, ErrNotHeapFile
	}

	i := 4
	h.Volatile = buf[i] == 1
	i += 4
	h.RecordSize = binary.LittleEndian.Uint32(buf[i:])
	i += 4
	h.RecordCount = binary.LittleEndian.Uint64(buf[i:])
	i += 8
	h.FirstFree = storage.PageNumber(binary.LittleEndian.Uint32(buf[i:]))
	i += 4
	numFields := int(binary.LittleEndian.Uint16(buf[i:]))
	i += 2

	fields := make([]record.Field, 0, numFields)
	for range numFields {
		if i >= len(buf) {
			return 0, fmt.Errorf("%w: truncated field list", ErrNotHeapFile)
		}
		nameLength := int(buf[i])
		i += 1
		if i+nameLength+1+4 > len(buf) {
			return 0, fmt.Errorf("%w: truncated field list", ErrNotHeapFile)
		}
		name := string(buf[i : i+nameLength])
		i += nameLength
		kind := record.Type(buf[i])
		i += 1
		size := int(binary.LittleEndian.Uint32(buf[i:]))
		i += 4
		fields = append(fields, record.Field{Name: name, Type: kind, Size: size})
	}
	h.Descriptor = record.NewDescriptor(fields...)

	return uint64(i), nil
}
