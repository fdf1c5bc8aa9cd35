package minirel

import (
	"context"
	"fmt"

	"github.com/RichardKnop/minirel/internal/record"
	"github.com/RichardKnop/minirel/internal/storage"
)

// groupPlan maps input positions to the output of a grouping.
type groupPlan struct {
	keys       []int
	aggregates []AggregateExpr
	args       []int // -1 for COUNT(*)
	kinds      []record.Type
	desc       record.Descriptor
}

// newGroupPlan builds the output schema: group attributes named as written,
// then one field per aggregate named after the aggregate. COUNT is INT, AVG
// is FLOAT, SUM keeps INT operands and is FLOAT otherwise, MIN and MAX keep
// the operand type.
func newGroupPlan(in record.Descriptor, groupBy []AttributeRef, aggregates []AggregateExpr) (groupPlan, error) {
	aPlan := groupPlan{aggregates: aggregates}
	fields := make([]record.Field, 0, len(groupBy)+len(aggregates))

	for _, anAttribute := range groupBy {
		idx, err := in.Resolve(anAttribute.String())
		if err != nil {
			return groupPlan{}, err
		}
		aField := in.Fields[idx]
		aField.Name = anAttribute.String()
		aPlan.keys = append(aPlan.keys, idx)
		fields = append(fields, aField)
	}

	for _, anAggregate := range aggregates {
		idx := -1
		operand := record.Field{Type: record.Int}
		if anAggregate.Arg != nil {
			var err error
			idx, err = in.Resolve(anAggregate.Arg.String())
			if err != nil {
				return groupPlan{}, err
			}
			operand = in.Fields[idx]
		}

		name := anAggregate.String()
		var aField record.Field
		switch anAggregate.Func {
		case Count:
			aField = record.NewField(name, record.Int, 0)
		case Avg:
			aField = record.NewField(name, record.Float, 0)
		case Sum:
			if !operand.Type.IsNumeric() {
				return groupPlan{}, fmt.Errorf("%w: %s", ErrInvalidAggregate, name)
			}
			if operand.Type == record.Int {
				aField = record.NewField(name, record.Int, 0)
			} else {
				aField = record.NewField(name, record.Float, 0)
			}
		case Min, Max:
			if idx < 0 {
				return groupPlan{}, fmt.Errorf("%w: %s", ErrInvalidAggregate, name)
			}
			aField = operand
			aField.Name = name
		default:
			return groupPlan{}, fmt.Errorf("%w: %s", ErrInvalidAggregate, name)
		}

		aPlan.args = append(aPlan.args, idx)
		aPlan.kinds = append(aPlan.kinds, aField.Type)
		fields = append(fields, aField)
	}

	aPlan.desc = record.NewDescriptor(fields...)
	return aPlan, nil
}

type accumulator struct {
	fn      AggregateFunc
	kind    record.Type
	count   int64
	sumInt  int64
	sum     float64
	extreme any
}

func (a *accumulator) add(value any) error {
	a.count++
	switch a.fn {
	case Sum, Avg:
		switch v := value.(type) {
		case int64:
			a.sumInt += v
			a.sum += float64(v)
		case float64:
			a.sum += v
		default:
			return fmt.Errorf("%w: %s over %T", ErrInvalidAggregate, a.fn, value)
		}
	case Min, Max:
		if a.extreme == nil {
			a.extreme = value
			return nil
		}
		c, err := record.Compare(value, a.extreme)
		if err != nil {
			return err
		}
		if (a.fn == Min && c < 0) || (a.fn == Max && c > 0) {
			a.extreme = value
		}
	}
	return nil
}

func (a *accumulator) result() any {
	switch a.fn {
	case Count:
		return a.count
	case Sum:
		if a.kind == record.Int {
			return a.sumInt
		}
		return a.sum
	case Avg:
		if a.count == 0 {
			return float64(0)
		}
		return a.sum / float64(a.count)
	default:
		if a.extreme == nil {
			return zeroValue(a.kind)
		}
		return a.extreme
	}
}

func zeroValue(kind record.Type) any {
	switch kind {
	case record.Int:
		return int64(0)
	case record.Boolean:
		return false
	case record.Varchar:
		return ""
	default:
		return float64(0)
	}
}

type group struct {
	key  []any
	accs []*accumulator
}

func (p groupPlan) newGroup(key []any) *group {
	aGroup := &group{key: key, accs: make([]*accumulator, 0, len(p.aggregates))}
	for i, anAggregate := range p.aggregates {
		aGroup.accs = append(aGroup.accs, &accumulator{fn: anAggregate.Func, kind: p.kinds[i]})
	}
	return aGroup
}

func (p groupPlan) row(aGroup *group) []any {
	values := make([]any, 0, len(aGroup.key)+len(aGroup.accs))
	values = append(values, aGroup.key...)
	for _, anAccumulator := range aGroup.accs {
		values = append(values, anAccumulator.result())
	}
	return values
}

// groupInto groups the input in memory and appends one record per group to
// out, in order of first appearance. Without group attributes an empty input
// still yields a single record when emptyRow is set.
func (o *HeapOperators) groupInto(ctx context.Context, out relation, in relation, aPlan groupPlan, emptyRow bool) error {
	var (
		groups = make(map[uint64][]*group)
		order  []*group
	)

	err := o.scan(ctx, in, func(values record.Record) error {
		key := pick(values, aPlan.keys)
		h := hashValues(key...)

		var aGroup *group
		for _, candidate := range groups[h] {
			if equalValues(candidate.key, key) {
				aGroup = candidate
				break
			}
		}
		if aGroup == nil {
			aGroup = aPlan.newGroup(key)
			groups[h] = append(groups[h], aGroup)
			order = append(order, aGroup)
		}

		for i, anAccumulator := range aGroup.accs {
			var value any
			if aPlan.args[i] >= 0 {
				value = values[aPlan.args[i]]
			}
			if err := anAccumulator.add(value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(order) == 0 && len(aPlan.keys) == 0 && emptyRow {
		order = append(order, aPlan.newGroup(nil))
	}

	for _, aGroup := range order {
		if err := o.insert(ctx, out, aPlan.row(aGroup)); err != nil {
			return err
		}
	}
	return nil
}

// GroupOnePass keeps one accumulator set per group in memory.
func (o *HeapOperators) GroupOnePass(ctx context.Context, in storage.FileID, groupBy []AttributeRef, aggregates []AggregateExpr) (storage.FileID, error) {
	input, err := o.open(ctx, in)
	if err != nil {
		return 0, err
	}
	aPlan, err := newGroupPlan(input.desc, groupBy, aggregates)
	if err != nil {
		return 0, err
	}

	return o.produce(ctx, aPlan.desc, func(out relation) error {
		return o.groupInto(ctx, out, input, aPlan, true)
	})
}

// GroupMultiPass hash partitions the input on the group attributes, every
// group then lies in one bucket which is grouped in memory.
func (o *HeapOperators) GroupMultiPass(ctx context.Context, in storage.FileID, groupBy []AttributeRef, aggregates []AggregateExpr) (storage.FileID, error) {
	if len(groupBy) == 0 {
		return o.GroupOnePass(ctx, in, groupBy, aggregates)
	}

	input, err := o.open(ctx, in)
	if err != nil {
		return 0, err
	}
	aPlan, err := newGroupPlan(input.desc, groupBy, aggregates)
	if err != nil {
		return 0, err
	}

	buckets, err := o.partition(ctx, input, aPlan.keys)
	if err != nil {
		return 0, err
	}
	defer o.dropAll(ctx, buckets)

	return o.produce(ctx, aPlan.desc, func(out relation) error {
		for _, aBucket := range buckets {
			if err := o.groupInto(ctx, out, aBucket, aPlan, false); err != nil {
				return err
			}
		}
		return nil
	})
}
