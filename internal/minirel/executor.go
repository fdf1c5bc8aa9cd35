package minirel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/storage"
)

// Executor evaluates plans bottom-up. Every node but TABLE produces a
// temporary relation which is deleted as soon as its parent consumed it.
type Executor struct {
	catalog Catalog
	ops     Operators
	logger  *zap.Logger
}

func NewExecutor(logger *zap.Logger, catalog Catalog, ops Operators) *Executor {
	return &Executor{
		catalog: catalog,
		ops:     ops,
		logger:  logger,
	}
}

// Execute returns the file holding the result of the plan. The caller owns
// it and must pass it to Release once done.
func (e *Executor) Execute(ctx context.Context, plan PlanNode) (storage.FileID, error) {
	if aTable, ok := plan.(*TableNode); ok {
		fileID, err := e.catalog.GetFileID(ctx, aTable.Table)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrTableNotFound, aTable.Table)
		}
		return fileID, nil
	}

	children := plan.Children()
	inputs := make([]storage.FileID, 0, len(children))
	defer func() {
		for i, fileID := range inputs {
			e.Release(ctx, children[i], fileID)
		}
	}()

	for _, aChild := range children {
		fileID, err := e.Execute(ctx, aChild)
		if err != nil {
			return 0, err
		}
		inputs = append(inputs, fileID)
	}

	output, err := e.dispatch(ctx, plan, inputs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", plan.Kind(), err)
	}

	e.logger.Sugar().With(
		"node", plan.Kind().String(),
		"output", output,
	).Debug("evaluated plan node")

	return output, nil
}

// Release deletes the result of a plan node unless it is a base table.
func (e *Executor) Release(ctx context.Context, plan PlanNode, fileID storage.FileID) {
	if plan.Kind() == TableKind {
		return
	}
	if err := e.catalog.DeleteHeapFile(ctx, fileID); err != nil {
		e.logger.Sugar().With("file_id", fileID, "error", err).Warn("failed to delete temporary relation")
	}
}

func (e *Executor) dispatch(ctx context.Context, plan PlanNode, inputs []storage.FileID) (storage.FileID, error) {
	switch n := plan.(type) {
	case *SelectNode:
		return e.ops.SelectScan(ctx, inputs[0], n.Condition)
	case *ProjectNode:
		return e.ops.Project(ctx, inputs[0], n.Attributes)
	case *DuplicateNode:
		return e.ops.DuplicateElimination(ctx, inputs[0])
	case *ProductNode:
		return e.ops.Product(ctx, inputs[0], inputs[1])
	case *JoinNode:
		switch n.Impl {
		case OnePassJoin:
			return e.ops.JoinOnePass(ctx, inputs[0], inputs[1], n.Condition)
		case MultiPassJoin:
			return e.ops.JoinMultiPass(ctx, inputs[0], inputs[1], n.Condition)
		default:
			return e.ops.JoinNestedLoops(ctx, inputs[0], inputs[1], n.Condition)
		}
	case *GroupNode:
		if n.Impl == MultiPassGroup {
			return e.ops.GroupMultiPass(ctx, inputs[0], n.GroupBy, n.Aggregates)
		}
		return e.ops.GroupOnePass(ctx, inputs[0], n.GroupBy, n.Aggregates)
	case *SortNode:
		return e.ops.SortTable(ctx, inputs[0], n.OrderBy)
	case *LimitNode:
		return e.ops.LimitTable(ctx, inputs[0], n.Limit)
	default:
		return 0, fmt.Errorf("unsupported plan node %s", plan.Kind())
	}
}
