package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrArityMismatch  = errors.New("value count does not match field count")
	ErrTypeMismatch   = errors.New("value does not match field type")
	ErrFieldNotFound  = errors.New("field not found")
	ErrAmbiguousField = errors.New("ambiguous field")
)

type Type int

const (
	Int Type = iota + 1
	Float
	Boolean
	Varchar
	Datetime
)

func (t Type) String() string {
	switch t {
	case Int:
		return "INT"
	case Float:
		return "FLOAT"
	case Boolean:
		return "BOOLEAN"
	case Varchar:
		return "VARCHAR"
	case Datetime:
		return "DATETIME"
	default:
		return "UNKNOWN"
	}
}

func (t Type) IsNumeric() bool {
	return t == Int || t == Float || t == Datetime
}

// Field is one column of the on-disk tuple layout. Size is the number of
// bytes the value occupies, alignment padding excluded.
type Field struct {
	Name string
	Type Type
	Size int
}

// NewField computes the byte size for the type. length is only used by
// VARCHAR and is the maximum number of characters.
func NewField(name string, kind Type, length int) Field {
	aField := Field{Name: name, Type: kind}
	switch kind {
	case Int, Boolean:
		aField.Size = 4
	case Float, Datetime:
		aField.Size = 8
	case Varchar:
		aField.Size = length + 1
	}
	return aField
}

// Capacity is the maximum VARCHAR length, the last byte is the terminator.
func (f Field) Capacity() int {
	if f.Type != Varchar {
		return 0
	}
	return f.Size - 1
}

func (f Field) alignment() int {
	switch f.Type {
	case Int, Boolean:
		return 4
	case Float, Datetime:
		return 8
	default:
		return 1
	}
}

func (f Field) String() string {
	if f.Type == Varchar {
		return fmt.Sprintf("%s VARCHAR(%d)", f.Name, f.Capacity())
	}
	return fmt.Sprintf("%s %s", f.Name, f.Type)
}

// Descriptor is the ordered field list of a table.
type Descriptor struct {
	Fields []Field
}

func NewDescriptor(fields ...Field) Descriptor {
	return Descriptor{Fields: fields}
}

func (d Descriptor) NumFields() int {
	return len(d.Fields)
}

func (d Descriptor) Names() []string {
	names := make([]string, 0, len(d.Fields))
	for _, aField := range d.Fields {
		names = append(names, aField.Name)
	}
	return names
}

// RecordSize is the length of an encoded record.
func (d Descriptor) RecordSize() int {
	offset := 0
	for _, aField := range d.Fields {
		offset = align(offset, aField.alignment())
		offset += aField.Size
	}
	return offset
}

// Resolve returns the position of the named field. Lookup is an exact match
// first, then an unqualified name matches a single "table.name" field, then
// a qualified "table.name" falls back to a plain "name" field.
func (d Descriptor) Resolve(name string) (int, error) {
	idx, err := d.find(func(aField Field) bool { return aField.Name == name }, name)
	if err == nil || errors.Is(err, ErrAmbiguousField) {
		return idx, err
	}

	if !strings.Contains(name, ".") {
		suffix := "." + name
		return d.find(func(aField Field) bool { return strings.HasSuffix(aField.Name, suffix) }, name)
	}

	_, attr := SplitQualified(name)
	return d.find(func(aField Field) bool { return aField.Name == attr }, name)
}

func (d Descriptor) find(match func(Field) bool, name string) (int, error) {
	found := -1
	for i, aField := range d.Fields {
		if !match(aField) {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("%w: %s", ErrAmbiguousField, name)
		}
		found = i
	}
	if found < 0 {
		return -1, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	return found, nil
}

// Qualify prefixes every unqualified field name with the table name.
func (d Descriptor) Qualify(table string) Descriptor {
	fields := make([]Field, 0, len(d.Fields))
	for _, aField := range d.Fields {
		if !strings.Contains(aField.Name, ".") {
			aField.Name = table + "." + aField.Name
		}
		fields = append(fields, aField)
	}
	return Descriptor{Fields: fields}
}

// Concat returns the fields of d followed by the fields of other.
func (d Descriptor) Concat(other Descriptor) Descriptor {
	fields := make([]Field, 0, len(d.Fields)+len(other.Fields))
	fields = append(fields, d.Fields...)
	fields = append(fields, other.Fields...)
	return Descriptor{Fields: fields}
}

// SplitQualified splits "table.attr" into its parts, table is empty for a
// plain name.
func SplitQualified(name string) (string, string) {
	table, attr, ok := strings.Cut(name, ".")
	if !ok {
		return "", name
	}
	return table, attr
}

func align(offset, n int) int {
	if remainder := offset % n; remainder != 0 {
		offset += n - remainder
	}
	return offset
}
