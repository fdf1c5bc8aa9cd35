package minirel

import (
	"context"

	"github.com/RichardKnop/minirel/internal/heap"
	"github.com/RichardKnop/minirel/internal/record"
	"github.com/RichardKnop/minirel/internal/storage"
)

// joinKeys are the positions of the attributes compared by the equalities
// of a join condition, left positions index the left input.
type joinKeys struct {
	left  []int
	right []int
}

func (k joinKeys) empty() bool {
	return len(k.left) == 0
}

// equiJoinKeys collects the equalities between a left and a right attribute
// among the conjuncts of the condition.
func equiJoinKeys(condition Expr, left, right record.Descriptor) joinKeys {
	var keys joinKeys
	for _, aConjunct := range conjuncts(condition) {
		anEquality, ok := aConjunct.(BinaryExpr)
		if !ok || anEquality.Op != Eq {
			continue
		}
		a, aok := anEquality.Left.(AttributeRef)
		b, bok := anEquality.Right.(AttributeRef)
		if !aok || !bok {
			continue
		}
		if l, r, ok := sides(a, b, left, right); ok {
			keys.left = append(keys.left, l)
			keys.right = append(keys.right, r)
			continue
		}
		if l, r, ok := sides(b, a, left, right); ok {
			keys.left = append(keys.left, l)
			keys.right = append(keys.right, r)
		}
	}
	return keys
}

func sides(a, b AttributeRef, left, right record.Descriptor) (int, int, bool) {
	l, err := left.Resolve(a.String())
	if err != nil {
		return 0, 0, false
	}
	r, err := right.Resolve(b.String())
	if err != nil {
		return 0, 0, false
	}
	if _, err := left.Resolve(b.String()); err == nil {
		return 0, 0, false
	}
	return l, r, true
}

func conjuncts(condition Expr) []Expr {
	if anAnd, ok := condition.(BinaryExpr); ok && anAnd.Op == And {
		return append(conjuncts(anAnd.Left), conjuncts(anAnd.Right)...)
	}
	if condition == nil {
		return nil
	}
	return []Expr{condition}
}

func pick(values record.Record, positions []int) []any {
	picked := make([]any, 0, len(positions))
	for _, idx := range positions {
		picked = append(picked, values[idx])
	}
	return picked
}

func (o *HeapOperators) openPair(ctx context.Context, left, right storage.FileID) (relation, relation, record.Descriptor, error) {
	l, err := o.open(ctx, left)
	if err != nil {
		return relation{}, relation{}, record.Descriptor{}, err
	}
	r, err := o.open(ctx, right)
	if err != nil {
		return relation{}, relation{}, record.Descriptor{}, err
	}
	return l, r, qualified(l).Concat(qualified(r)), nil
}

// emit writes the concatenation of two records when it satisfies the
// condition.
func (o *HeapOperators) emit(ctx context.Context, out relation, condition Expr, lv, rv record.Record) error {
	joined := make(record.Record, 0, len(lv)+len(rv))
	joined = append(joined, lv...)
	joined = append(joined, rv...)
	ok, err := CheckCondition(condition, Tuple{Descriptor: out.desc, Values: joined})
	if err != nil || !ok {
		return err
	}
	return o.insert(ctx, out, joined)
}

// JoinNestedLoops rescans the right input for every record of the left one.
func (o *HeapOperators) JoinNestedLoops(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error) {
	l, r, desc, err := o.openPair(ctx, left, right)
	if err != nil {
		return 0, err
	}

	return o.produce(ctx, desc, func(out relation) error {
		return o.scan(ctx, l, func(lv record.Record) error {
			return o.scan(ctx, r, func(rv record.Record) error {
				return o.emit(ctx, out, condition, lv, rv)
			})
		})
	})
}

// JoinOnePass keeps the right input in memory. Equalities between the two
// inputs are answered from a hash table, other conditions loop over the
// right records.
func (o *HeapOperators) JoinOnePass(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error) {
	l, r, desc, err := o.openPair(ctx, left, right)
	if err != nil {
		return 0, err
	}
	keys := equiJoinKeys(condition, qualified(l), qualified(r))

	return o.produce(ctx, desc, func(out relation) error {
		rightRecords, err := o.load(ctx, r)
		if err != nil {
			return err
		}
		if keys.empty() {
			return o.scan(ctx, l, func(lv record.Record) error {
				for _, rv := range rightRecords {
					if err := o.emit(ctx, out, condition, lv, rv); err != nil {
						return err
					}
				}
				return nil
			})
		}
		return o.hashJoin(ctx, out, l, rightRecords, keys, condition)
	})
}

// JoinMultiPass hash partitions both inputs on the join equalities and joins
// matching buckets in memory. Conditions without such an equality fall back
// to nested loops.
func (o *HeapOperators) JoinMultiPass(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error) {
	l, r, desc, err := o.openPair(ctx, left, right)
	if err != nil {
		return 0, err
	}
	keys := equiJoinKeys(condition, qualified(l), qualified(r))
	if keys.empty() {
		o.logger.Sugar().With("condition", condition, "error", errNoEquiJoin).Debug("multi-pass join falls back to nested loops")
		return o.JoinNestedLoops(ctx, left, right, condition)
	}

	leftBuckets, err := o.partition(ctx, l, keys.left)
	if err != nil {
		return 0, err
	}
	defer o.dropAll(ctx, leftBuckets)

	rightBuckets, err := o.partition(ctx, r, keys.right)
	if err != nil {
		return 0, err
	}
	defer o.dropAll(ctx, rightBuckets)

	return o.produce(ctx, desc, func(out relation) error {
		for i := range leftBuckets {
			rightRecords, err := o.load(ctx, rightBuckets[i])
			if err != nil {
				return err
			}
			if len(rightRecords) == 0 {
				continue
			}
			if err := o.hashJoin(ctx, out, leftBuckets[i], rightRecords, keys, condition); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *HeapOperators) hashJoin(ctx context.Context, out relation, l relation, rightRecords []record.Record, keys joinKeys, condition Expr) error {
	table := make(map[uint64][]record.Record, len(rightRecords))
	for _, rv := range rightRecords {
		h := hashValues(pick(rv, keys.right)...)
		table[h] = append(table[h], rv)
	}

	return o.scan(ctx, l, func(lv record.Record) error {
		leftKey := pick(lv, keys.left)
		for _, rv := range table[hashValues(leftKey...)] {
			if !equalValues(leftKey, pick(rv, keys.right)) {
				continue
			}
			if err := o.emit(ctx, out, condition, lv, rv); err != nil {
				return err
			}
		}
		return nil
	})
}

// partition splits a relation into hash buckets on the given attributes.
// Buckets keep the schema of the input.
func (o *HeapOperators) partition(ctx context.Context, in relation, positions []int) ([]relation, error) {
	buckets := make([]relation, 0, o.partitions)
	for range o.partitions {
		aBucket, err := o.temp(ctx, in.desc)
		if err != nil {
			o.dropAll(ctx, buckets)
			return nil, err
		}
		buckets = append(buckets, aBucket)
	}

	err := o.catalog.Scan(ctx, in.id, func(_ heap.RecordID, data []byte) error {
		values, err := record.Decode(data, in.desc)
		if err != nil {
			return err
		}
		aBucket := buckets[hashValues(pick(values, positions)...)%uint64(len(buckets))]
		_, err = o.catalog.InsertRecord(ctx, aBucket.id, data)
		return err
	})
	if err != nil {
		o.dropAll(ctx, buckets)
		return nil, err
	}

	return buckets, nil
}

func (o *HeapOperators) dropAll(ctx context.Context, relations []relation) {
	for _, aRelation := range relations {
		o.drop(ctx, aRelation)
	}
}
