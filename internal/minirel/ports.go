package minirel

import (
	"context"

	"github.com/RichardKnop/minirel/internal/heap"
	"github.com/RichardKnop/minirel/internal/record"
	"github.com/RichardKnop/minirel/internal/storage"
)

type Parser interface {
	Parse(context.Context, string) ([]Statement, error)
}

// Catalog is the heap file boundary, implemented by *heap.Catalog.
type Catalog interface {
	CreateHeapFile(ctx context.Context, name string, desc record.Descriptor, volatile bool) (storage.FileID, error)
	DeleteHeapFile(ctx context.Context, fileID storage.FileID) error
	GetFileID(ctx context.Context, name string) (storage.FileID, error)
	Exists(ctx context.Context, name string) bool
	Name(ctx context.Context, fileID storage.FileID) (string, error)
	Tables(ctx context.Context) ([]storage.FileInfo, error)
	GetRecordDescriptor(ctx context.Context, fileID storage.FileID) (record.Descriptor, error)
	GetRecordByteSize(ctx context.Context, fileID storage.FileID) (int, error)
	RecordCount(ctx context.Context, fileID storage.FileID) (uint64, error)
	InsertRecord(ctx context.Context, fileID storage.FileID, data []byte) (heap.RecordID, error)
	DeleteRecord(ctx context.Context, fileID storage.FileID, rid heap.RecordID) error
	UpdateRecord(ctx context.Context, fileID storage.FileID, rid heap.RecordID, data []byte) error
	Scan(ctx context.Context, fileID storage.FileID, fn func(rid heap.RecordID, data []byte) error) error
}

// Operators are the relational algorithms the executor dispatches to. Each
// one reads its inputs and returns a new temporary relation.
type Operators interface {
	SelectScan(ctx context.Context, in storage.FileID, condition Expr) (storage.FileID, error)
	Project(ctx context.Context, in storage.FileID, attributes []string) (storage.FileID, error)
	DuplicateElimination(ctx context.Context, in storage.FileID) (storage.FileID, error)
	Product(ctx context.Context, left, right storage.FileID) (storage.FileID, error)
	JoinOnePass(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error)
	JoinMultiPass(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error)
	JoinNestedLoops(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error)
	GroupOnePass(ctx context.Context, in storage.FileID, groupBy []AttributeRef, aggregates []AggregateExpr) (storage.FileID, error)
	GroupMultiPass(ctx context.Context, in storage.FileID, groupBy []AttributeRef, aggregates []AggregateExpr) (storage.FileID, error)
	SortTable(ctx context.Context, in storage.FileID, orderBy []OrderBy) (storage.FileID, error)
	LimitTable(ctx context.Context, in storage.FileID, limit int64) (storage.FileID, error)
}

type LRUCache[T any] interface {
	Get(T) (any, bool)
	GetAndPromote(T) (any, bool)
	Put(T, any, bool)
}
