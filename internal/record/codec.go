package record

import (
	"fmt"
	"math"
	"time"
)

// DatetimeFormat is the literal format accepted for DATETIME values.
const DatetimeFormat = "2006-01-02 15:04:05"

// Record holds one value per descriptor field, in descriptor order. Values
// are int64 (INT), float64 (FLOAT, DATETIME), bool (BOOLEAN) and string
// (VARCHAR).
type Record []any

// Encode lays the values out in descriptor order. INT and BOOLEAN are
// aligned to 4 bytes, FLOAT and DATETIME to 8 bytes. A VARCHAR longer than
// its capacity is truncated, the region always ends with a zero byte.
func Encode(values []any, d Descriptor) ([]byte, error) {
	buf := make([]byte, d.RecordSize())
	if err := EncodeInto(buf, values, d); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto encodes into buf, which must be at least RecordSize bytes.
func EncodeInto(buf []byte, values []any, d Descriptor) error {
	if len(values) != len(d.Fields) {
		return fmt.Errorf("%w: got %d values, expected %d", ErrArityMismatch, len(values), len(d.Fields))
	}
	if len(buf) < d.RecordSize() {
		return fmt.Errorf("record buffer too small: %d < %d", len(buf), d.RecordSize())
	}

	offset := 0
	for i, aField := range d.Fields {
		value, err := Coerce(values[i], aField)
		if err != nil {
			return err
		}
		offset = align(offset, aField.alignment())
		switch aField.Type {
		case Int:
			marshalInt32(buf, int32(value.(int64)), offset)
		case Boolean:
			var n int32
			if value.(bool) {
				n = 1
			}
			marshalInt32(buf, n, offset)
		case Float, Datetime:
			marshalFloat64(buf, value.(float64), offset)
		case Varchar:
			region := buf[offset : offset+aField.Size]
			clear(region)
			copy(region[:aField.Capacity()], value.(string))
		}
		offset += aField.Size
	}
	return nil
}

// Decode is the inverse of Encode.
func Decode(data []byte, d Descriptor) (Record, error) {
	if len(data) < d.RecordSize() {
		return nil, fmt.Errorf("record too short: %d < %d", len(data), d.RecordSize())
	}

	values := make(Record, 0, len(d.Fields))
	offset := 0
	for _, aField := range d.Fields {
		offset = align(offset, aField.alignment())
		switch aField.Type {
		case Int:
			values = append(values, int64(unmarshalInt32(data, offset)))
		case Boolean:
			values = append(values, unmarshalInt32(data, offset) != 0)
		case Float, Datetime:
			values = append(values, unmarshalFloat64(data, offset))
		case Varchar:
			region := data[offset : offset+aField.Size]
			end := 0
			for end < len(region) && region[end] != 0 {
				end += 1
			}
			values = append(values, string(region[:end]))
		default:
			return nil, fmt.Errorf("%w: unknown type %d of field %s", ErrTypeMismatch, aField.Type, aField.Name)
		}
		offset += aField.Size
	}
	return values, nil
}

// Coerce converts a value into the canonical Go type of the field. Integers
// widen to floats, floats are truncated for INT fields.
func Coerce(value any, aField Field) (any, error) {
	switch aField.Type {
	case Int:
		switch v := value.(type) {
		case int64:
			return checkInt32(v, aField)
		case int:
			return checkInt32(int64(v), aField)
		case int32:
			return int64(v), nil
		case float64:
			return checkInt32(int64(v), aField)
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case Float:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		}
	case Boolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case int:
			return v != 0, nil
		}
	case Varchar:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case Datetime:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case time.Time:
			return float64(v.Unix()), nil
		case string:
			t, err := time.Parse(DatetimeFormat, v)
			if err != nil {
				return nil, fmt.Errorf("%w: field %s expects %s, got %q", ErrTypeMismatch, aField.Name, DatetimeFormat, v)
			}
			return float64(t.Unix()), nil
		}
	}
	return nil, fmt.Errorf("%w: field %s of type %s cannot hold %v (%T)", ErrTypeMismatch, aField.Name, aField.Type, value, value)
}

func checkInt32(n int64, aField Field) (any, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d overflows INT field %s", ErrTypeMismatch, n, aField.Name)
	}
	return n, nil
}

// Format renders a value the way query results print it.
func Format(value any, aField Field) string {
	switch aField.Type {
	case Varchar:
		return fmt.Sprintf("'%s'", value)
	case Int:
		return fmt.Sprintf("%d", value)
	case Boolean:
		if b, ok := value.(bool); ok && b {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%f", value)
	}
}

func marshalInt32(buf []byte, n int32, i int) []byte {
	buf[i+0] = byte(n >> 0)
	buf[i+1] = byte(n >> 8)
	buf[i+2] = byte(n >> 16)
	buf[i+3] = byte(n >> 24)
	return buf
}

func unmarshalInt32(buf []byte, i int) int32 {
	return 0 |
		(int32(buf[i+0]) << 0) |
		(int32(buf[i+1]) << 8) |
		(int32(buf[i+2]) << 16) |
		(int32(buf[i+3]) << 24)
}

func marshalFloat64(buf []byte, n float64, i int) []byte {
	bits := math.Float64bits(n)
	for j := range 8 {
		buf[i+j] = byte(bits >> (8 * j))
	}
	return buf
}

func unmarshalFloat64(buf []byte, i int) float64 {
	var bits uint64
	for j := range 8 {
		bits |= uint64(buf[i+j]) << (8 * j)
	}
	return math.Float64frombits(bits)
}
