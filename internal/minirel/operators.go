package minirel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/heap"
	"github.com/RichardKnop/minirel/internal/record"
	"github.com/RichardKnop/minirel/internal/storage"
)

const DefaultPartitions = 8

type OperatorOptions struct {
	// Partitions is the number of hash buckets multi-pass algorithms split
	// their inputs into.
	Partitions int
}

// HeapOperators implements the relational algorithms over heap files. Every
// output is a new volatile heap file.
type HeapOperators struct {
	catalog    Catalog
	partitions int
	logger     *zap.Logger
}

func NewHeapOperators(logger *zap.Logger, catalog Catalog, opts OperatorOptions) *HeapOperators {
	if opts.Partitions < 1 {
		opts.Partitions = DefaultPartitions
	}
	return &HeapOperators{
		catalog:    catalog,
		partitions: opts.Partitions,
		logger:     logger,
	}
}

// relation is an open heap file together with its schema.
type relation struct {
	id   storage.FileID
	name string
	desc record.Descriptor
}

func (o *HeapOperators) open(ctx context.Context, fileID storage.FileID) (relation, error) {
	name, err := o.catalog.Name(ctx, fileID)
	if err != nil {
		return relation{}, err
	}
	desc, err := o.catalog.GetRecordDescriptor(ctx, fileID)
	if err != nil {
		return relation{}, err
	}
	return relation{id: fileID, name: name, desc: desc}, nil
}

// temp creates a temporary relation.
func (o *HeapOperators) temp(ctx context.Context, desc record.Descriptor) (relation, error) {
	name := heap.TempPrefix + uuid.NewString()
	fileID, err := o.catalog.CreateHeapFile(ctx, name, desc, true)
	if err != nil {
		return relation{}, err
	}
	o.logger.Sugar().With("name", name, "file_id", fileID).Debug("created temporary relation")
	return relation{id: fileID, name: name, desc: desc}, nil
}

// drop deletes a temporary relation, used on error paths and for buckets.
func (o *HeapOperators) drop(ctx context.Context, aRelation relation) {
	if err := o.catalog.DeleteHeapFile(ctx, aRelation.id); err != nil {
		o.logger.Sugar().With("name", aRelation.name, "error", err).Warn("failed to delete temporary relation")
	}
}

func (o *HeapOperators) scan(ctx context.Context, aRelation relation, fn func(record.Record) error) error {
	return o.catalog.Scan(ctx, aRelation.id, func(_ heap.RecordID, data []byte) error {
		values, err := record.Decode(data, aRelation.desc)
		if err != nil {
			return err
		}
		return fn(values)
	})
}

func (o *HeapOperators) insert(ctx context.Context, aRelation relation, values []any) error {
	data, err := record.Encode(values, aRelation.desc)
	if err != nil {
		return err
	}
	_, err = o.catalog.InsertRecord(ctx, aRelation.id, data)
	return err
}

// load reads the whole relation into memory.
func (o *HeapOperators) load(ctx context.Context, aRelation relation) ([]record.Record, error) {
	var records []record.Record
	err := o.scan(ctx, aRelation, func(values record.Record) error {
		records = append(records, values)
		return nil
	})
	return records, err
}

// produce runs fn against a fresh temporary relation and deletes the
// relation again if fn fails.
func (o *HeapOperators) produce(ctx context.Context, desc record.Descriptor, fn func(out relation) error) (storage.FileID, error) {
	out, err := o.temp(ctx, desc)
	if err != nil {
		return 0, err
	}
	if err := fn(out); err != nil {
		o.drop(ctx, out)
		return 0, err
	}
	return out.id, nil
}

func (o *HeapOperators) SelectScan(ctx context.Context, in storage.FileID, condition Expr) (storage.FileID, error) {
	input, err := o.open(ctx, in)
	if err != nil {
		return 0, err
	}

	return o.produce(ctx, input.desc, func(out relation) error {
		return o.scan(ctx, input, func(values record.Record) error {
			ok, err := CheckCondition(condition, Tuple{Descriptor: input.desc, Values: values})
			if err != nil || !ok {
				return err
			}
			return o.insert(ctx, out, values)
		})
	})
}

// Project keeps the requested attributes, output fields are named exactly as
// requested.
func (o *HeapOperators) Project(ctx context.Context, in storage.FileID, attributes []string) (storage.FileID, error) {
	input, err := o.open(ctx, in)
	if err != nil {
		return 0, err
	}

	positions := make([]int, 0, len(attributes))
	fields := make([]record.Field, 0, len(attributes))
	for _, name := range attributes {
		idx, err := input.desc.Resolve(name)
		if err != nil {
			return 0, err
		}
		aField := input.desc.Fields[idx]
		aField.Name = name
		positions = append(positions, idx)
		fields = append(fields, aField)
	}

	return o.produce(ctx, record.NewDescriptor(fields...), func(out relation) error {
		projected := make([]any, len(positions))
		return o.scan(ctx, input, func(values record.Record) error {
			for i, idx := range positions {
				projected[i] = values[idx]
			}
			return o.insert(ctx, out, projected)
		})
	})
}

// DuplicateElimination keeps the first copy of every record. Encoded records
// are zero padded, so equal values have equal bytes.
func (o *HeapOperators) DuplicateElimination(ctx context.Context, in storage.FileID) (storage.FileID, error) {
	input, err := o.open(ctx, in)
	if err != nil {
		return 0, err
	}

	return o.produce(ctx, input.desc, func(out relation) error {
		seen := make(map[uint64][][]byte)
		return o.catalog.Scan(ctx, input.id, func(_ heap.RecordID, data []byte) error {
			sum := xxhash.Sum64(data)
			if slices.ContainsFunc(seen[sum], func(existing []byte) bool {
				return bytes.Equal(existing, data)
			}) {
				return nil
			}
			seen[sum] = append(seen[sum], data)
			_, err := o.catalog.InsertRecord(ctx, out.id, data)
			return err
		})
	})
}

// Product pairs every record of left with every record of right. Fields of
// base tables are qualified with the table name.
func (o *HeapOperators) Product(ctx context.Context, left, right storage.FileID) (storage.FileID, error) {
	return o.JoinNestedLoops(ctx, left, right, nil)
}

// SortTable sorts the relation in memory, the sort is stable.
func (o *HeapOperators) SortTable(ctx context.Context, in storage.FileID, orderBy []OrderBy) (storage.FileID, error) {
	input, err := o.open(ctx, in)
	if err != nil {
		return 0, err
	}

	positions := make([]int, 0, len(orderBy))
	for _, anOrder := range orderBy {
		idx, err := input.desc.Resolve(anOrder.Attribute.String())
		if err != nil {
			return 0, err
		}
		positions = append(positions, idx)
	}

	records, err := o.load(ctx, input)
	if err != nil {
		return 0, err
	}

	var sortErr error
	slices.SortStableFunc(records, func(a, b record.Record) int {
		for i, idx := range positions {
			c, err := record.Compare(a[idx], b[idx])
			if err != nil {
				sortErr = err
				return 0
			}
			if c == 0 {
				continue
			}
			if orderBy[i].Direction == Desc {
				return -c
			}
			return c
		}
		return 0
	})
	if sortErr != nil {
		return 0, sortErr
	}

	return o.produce(ctx, input.desc, func(out relation) error {
		for _, values := range records {
			if err := o.insert(ctx, out, values); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *HeapOperators) LimitTable(ctx context.Context, in storage.FileID, limit int64) (storage.FileID, error) {
	input, err := o.open(ctx, in)
	if err != nil {
		return 0, err
	}

	return o.produce(ctx, input.desc, func(out relation) error {
		if limit <= 0 {
			return nil
		}
		var n int64
		return o.catalog.Scan(ctx, input.id, func(_ heap.RecordID, data []byte) error {
			if _, err := o.catalog.InsertRecord(ctx, out.id, data); err != nil {
				return err
			}
			n++
			if n >= limit {
				return heap.ErrStopScan
			}
			return nil
		})
	})
}

// qualified is the schema a relation contributes to a product or join.
func qualified(aRelation relation) record.Descriptor {
	if strings.HasPrefix(aRelation.name, heap.TempPrefix) {
		return aRelation.desc
	}
	return aRelation.desc.Qualify(aRelation.name)
}

// hashValues hashes values so that equal numbers hash equally whether they
// are INT or FLOAT.
func hashValues(values ...any) uint64 {
	d := xxhash.New()
	buf := make([]byte, 8)
	for _, value := range values {
		switch v := value.(type) {
		case int64:
			putUint64(buf, math.Float64bits(float64(v)))
			_, _ = d.Write(buf)
		case float64:
			putUint64(buf, math.Float64bits(v))
			_, _ = d.Write(buf)
		case bool:
			if v {
				_, _ = d.Write([]byte{1})
			} else {
				_, _ = d.Write([]byte{0})
			}
		case string:
			_, _ = d.WriteString(v)
			_, _ = d.Write([]byte{0})
		default:
			_, _ = d.WriteString(fmt.Sprintf("%v", v))
		}
	}
	return d.Sum64()
}

func putUint64(buf []byte, n uint64) {
	for i := range 8 {
		buf[i] = byte(n >> (8 * i))
	}
}

func equalValues(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !record.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

var errNoEquiJoin = errors.New("join condition has no equality between the inputs")
