package minirel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RichardKnop/minirel/internal/storage"
)

func TestExecutor_Dispatch(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aCatalog = newTestCatalog(t)
		ops      = new(MockOperators)
		executor = NewExecutor(testLogger, aCatalog, ops)
		users    = createTestTable(t, aCatalog, "users", usersDescriptor, usersRows)
		orders   = createTestTable(t, aCatalog, "orders", ordersDescriptor, ordersRows)
	)

	// Intermediate results must exist for the executor to release them.
	tempFile := func(name string) storage.FileID {
		return createTestTable(t, aCatalog, name, usersDescriptor, nil)
	}

	t.Run("bare table is returned as is", func(t *testing.T) {
		fileID, err := executor.Execute(ctx, &TableNode{Table: "users"})
		require.NoError(t, err)
		assert.Equal(t, users, fileID)

		executor.Release(ctx, &TableNode{Table: "users"}, fileID)
		assert.True(t, aCatalog.Exists(ctx, "users"))
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := executor.Execute(ctx, &TableNode{Table: "missing"})
		assert.ErrorIs(t, err, ErrTableNotFound)
	})

	t.Run("chooses the configured join algorithm", func(t *testing.T) {
		condition := BinaryExpr{Op: Eq, Left: attr("users", "id"), Right: attr("orders", "user_id")}
		testCases := []struct {
			Name   string
			Impl   JoinImpl
			Method string
		}{
			{"nested loops", NestedLoopJoin, "JoinNestedLoops"},
			{"one pass", OnePassJoin, "JoinOnePass"},
			{"multi pass", MultiPassJoin, "JoinMultiPass"},
		}

		for _, aTestCase := range testCases {
			t.Run(aTestCase.Name, func(t *testing.T) {
				defer resetMock(&ops.Mock)

				ops.On(aTestCase.Method, ctx, users, orders, condition).Return(storage.FileID(99), nil).Once()

				fileID, err := executor.Execute(ctx, &JoinNode{
					Condition: condition,
					Left:      &TableNode{Table: "users"},
					Right:     &TableNode{Table: "orders"},
					Impl:      aTestCase.Impl,
				})
				require.NoError(t, err)
				assert.Equal(t, storage.FileID(99), fileID)
				ops.AssertExpectations(t)
			})
		}
	})

	t.Run("chooses the configured group algorithm", func(t *testing.T) {
		defer resetMock(&ops.Mock)

		groupBy := []AttributeRef{{Name: "name"}}
		aggregates := []AggregateExpr{{Func: Count}}
		ops.On("GroupMultiPass", ctx, users, groupBy, aggregates).Return(storage.FileID(98), nil).Once()

		fileID, err := executor.Execute(ctx, &GroupNode{
			GroupBy:    groupBy,
			Aggregates: aggregates,
			Child:      &TableNode{Table: "users"},
			Impl:       MultiPassGroup,
		})
		require.NoError(t, err)
		assert.Equal(t, storage.FileID(98), fileID)
		ops.AssertExpectations(t)
	})

	t.Run("intermediate results are released", func(t *testing.T) {
		defer resetMock(&ops.Mock)

		var (
			selected  = tempFile("selected")
			sorted    = tempFile("sorted")
			condition = BinaryExpr{Op: Gt, Left: AttributeRef{Name: "id"}, Right: Literal{Value: int64(1)}}
			orderBy   = []OrderBy{{Attribute: AttributeRef{Name: "id"}, Direction: Desc}}
		)
		ops.On("SelectScan", ctx, users, condition).Return(selected, nil).Once()
		ops.On("SortTable", ctx, selected, orderBy).Return(sorted, nil).Once()
		ops.On("LimitTable", ctx, sorted, int64(2)).Return(storage.FileID(97), nil).Once()

		fileID, err := executor.Execute(ctx, &LimitNode{
			Limit: 2,
			Child: &SortNode{
				OrderBy: orderBy,
				Child:   &SelectNode{Condition: condition, Child: &TableNode{Table: "users"}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, storage.FileID(97), fileID)
		ops.AssertExpectations(t)

		assert.False(t, aCatalog.Exists(ctx, "selected"))
		assert.False(t, aCatalog.Exists(ctx, "sorted"))
		assert.True(t, aCatalog.Exists(ctx, "users"))
	})

	t.Run("intermediate results are released on failure", func(t *testing.T) {
		defer resetMock(&ops.Mock)

		var (
			projected = tempFile("projected")
			errBoom   = errors.New("boom")
		)
		ops.On("Project", ctx, users, []string{"name"}).Return(projected, nil).Once()
		ops.On("DuplicateElimination", ctx, projected).Return(storage.FileID(0), errBoom).Once()

		_, err := executor.Execute(ctx, &DuplicateNode{
			Child: &ProjectNode{Attributes: []string{"name"}, Child: &TableNode{Table: "users"}},
		})
		assert.ErrorIs(t, err, errBoom)
		ops.AssertExpectations(t)

		assert.False(t, aCatalog.Exists(ctx, "projected"))
	})

	t.Run("a failing child stops evaluation", func(t *testing.T) {
		defer resetMock(&ops.Mock)

		_, err := executor.Execute(ctx, &ProductNode{
			Left:  &TableNode{Table: "users"},
			Right: &TableNode{Table: "missing"},
		})
		assert.ErrorIs(t, err, ErrTableNotFound)
		ops.AssertNotCalled(t, "Product", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestExecutor_LeavesOnlyBaseTables(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aCatalog = newTestCatalog(t)
		ops      = NewHeapOperators(testLogger, aCatalog, OperatorOptions{Partitions: 2})
		executor = NewExecutor(testLogger, aCatalog, ops)
	)
	createTestTable(t, aCatalog, "users", usersDescriptor, usersRows)
	createTestTable(t, aCatalog, "orders", ordersDescriptor, ordersRows)

	plans := []struct {
		Name string
		Stmt Statement
		Opts OptimizerOptions
	}{
		{
			"product with projection",
			Statement{Kind: Select, Items: []SelectItem{Attr("name")}, From: []TableRef{{Name: "users"}, {Name: "orders"}}},
			DefaultOptimizerOptions(),
		},
		{
			"multi pass join and group",
			Statement{
				Kind:     Select,
				Distinct: true,
				Items:    []SelectItem{Attr("users.name"), Aggregate(AggregateExpr{Func: Sum, Arg: &AttributeRef{Table: "orders", Name: "amount"}})},
				From:     []TableRef{{Name: "users"}, {Name: "orders"}},
				Where:    BinaryExpr{Op: Eq, Left: attr("users", "id"), Right: attr("orders", "user_id")},
				GroupBy:  []AttributeRef{attr("users", "name")},
				OrderBy:  []OrderBy{{Attribute: attr("users", "name"), Direction: Desc}},
				HasLimit: true,
				Limit:    2,
			},
			OptimizerOptions{RewriteJoins: true, Join: MultiPassJoin, Group: MultiPassGroup},
		},
	}

	for _, aPlan := range plans {
		t.Run(aPlan.Name, func(t *testing.T) {
			plan, err := BuildPlan(aPlan.Stmt)
			require.NoError(t, err)
			plan = NewOptimizer(testLogger, aPlan.Opts).Optimize(plan)

			fileID, err := executor.Execute(ctx, plan)
			require.NoError(t, err)
			assert.Len(t, fileNames(t, aCatalog), 3, "only the result is left next to the base tables")

			executor.Release(ctx, plan, fileID)
			assert.ElementsMatch(t, []string{"users", "orders"}, fileNames(t, aCatalog))
		})
	}
}
