package minirel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardKnop/minirel/internal/record"
)

func TestValidator_ValidateSelect(t *testing.T) {
	t.Parallel()

	var (
		ctx       = context.Background()
		aCatalog  = newTestCatalog(t)
		validator = NewValidator(testLogger, aCatalog)
	)
	createTestTable(t, aCatalog, "users", usersDescriptor, nil)
	createTestTable(t, aCatalog, "orders", ordersDescriptor, nil)
	createTestTable(t, aCatalog, "accounts", record.NewDescriptor(
		record.NewField("id", record.Int, 0),
		record.NewField("balance", record.Float, 0),
	), nil)

	maxScore := AggregateExpr{Func: Max, Arg: &AttributeRef{Name: "score"}}

	testCases := []struct {
		Name string
		Stmt Statement
		Err  error
	}{
		{
			"unknown table",
			Statement{Kind: Select, Items: []SelectItem{Star()}, From: []TableRef{{Name: "missing"}}},
			ErrTableNotFound,
		},
		{
			"duplicate alias",
			Statement{Kind: Select, Items: []SelectItem{Star()}, From: []TableRef{{Name: "users", Alias: "x"}, {Name: "orders", Alias: "x"}}},
			ErrDuplicateAlias,
		},
		{
			"alias collides with a table name",
			Statement{Kind: Select, Items: []SelectItem{Star()}, From: []TableRef{{Name: "users", Alias: "orders"}, {Name: "orders", Alias: "o"}}},
			ErrDuplicateAlias,
		},
		{
			"alias collides with an unaliased table",
			Statement{Kind: Select, Items: []SelectItem{Star()}, From: []TableRef{{Name: "orders"}, {Name: "users", Alias: "orders"}}},
			ErrDuplicateAlias,
		},
		{
			"same table twice",
			Statement{Kind: Select, Items: []SelectItem{Star()}, From: []TableRef{{Name: "users"}, {Name: "users"}}},
			ErrDuplicateTableName,
		},
		{
			"unknown attribute in where",
			Statement{
				Kind:  Select,
				Items: []SelectItem{Star()},
				From:  []TableRef{{Name: "users"}},
				Where: BinaryExpr{Op: Eq, Left: AttributeRef{Name: "missing"}, Right: Literal{Value: int64(1)}},
			},
			ErrAttributeNotFound,
		},
		{
			"aggregate in where",
			Statement{
				Kind:  Select,
				Items: []SelectItem{Star()},
				From:  []TableRef{{Name: "users"}},
				Where: BinaryExpr{Op: Gt, Left: AggregateExpr{Func: Count}, Right: Literal{Value: int64(1)}},
			},
			ErrAggregatesNotAllowed,
		},
		{
			"ambiguous attribute",
			Statement{
				Kind:  Select,
				Items: []SelectItem{Attr("id")},
				From:  []TableRef{{Name: "users"}, {Name: "accounts"}},
			},
			ErrAmbiguousAttribute,
		},
		{
			"ambiguous attribute in where",
			Statement{
				Kind:  Select,
				Items: []SelectItem{Star()},
				From:  []TableRef{{Name: "users"}, {Name: "accounts"}},
				Where: BinaryExpr{Op: Gt, Left: AttributeRef{Name: "id"}, Right: Literal{Value: int64(1)}},
			},
			ErrAmbiguousAttribute,
		},
		{
			"qualified attribute shared by two tables",
			Statement{
				Kind:  Select,
				Items: []SelectItem{Attr("accounts.id"), Attr("name")},
				From:  []TableRef{{Name: "users"}, {Name: "accounts"}},
			},
			nil,
		},
		{
			"qualifier not in from",
			Statement{Kind: Select, Items: []SelectItem{Attr("orders.amount")}, From: []TableRef{{Name: "users"}}},
			ErrTableNotInFrom,
		},
		{
			"attribute of the wrong table",
			Statement{Kind: Select, Items: []SelectItem{Attr("users.amount")}, From: []TableRef{{Name: "users"}, {Name: "orders"}}},
			ErrAttributeNotFound,
		},
		{
			"unknown group by attribute",
			Statement{
				Kind:    Select,
				Items:   []SelectItem{Aggregate(AggregateExpr{Func: Count})},
				From:    []TableRef{{Name: "users"}},
				GroupBy: []AttributeRef{{Name: "missing"}},
			},
			ErrAttributeNotFound,
		},
		{
			"select attribute not in group by",
			Statement{
				Kind:    Select,
				Items:   []SelectItem{Attr("id"), Aggregate(AggregateExpr{Func: Count})},
				From:    []TableRef{{Name: "users"}},
				GroupBy: []AttributeRef{{Name: "name"}},
			},
			ErrNotInGroupBy,
		},
		{
			"aggregate with plain attribute and no group by",
			Statement{
				Kind:  Select,
				Items: []SelectItem{Attr("name"), Aggregate(maxScore)},
				From:  []TableRef{{Name: "users"}},
			},
			ErrNotInGroupBy,
		},
		{
			"having attribute not in group by",
			Statement{
				Kind:    Select,
				Items:   []SelectItem{Attr("name")},
				From:    []TableRef{{Name: "users"}},
				GroupBy: []AttributeRef{{Name: "name"}},
				Having:  BinaryExpr{Op: Gt, Left: AttributeRef{Name: "score"}, Right: Literal{Value: int64(1)}},
			},
			ErrNotInGroupBy,
		},
		{
			"order by attribute not in group by",
			Statement{
				Kind:    Select,
				Items:   []SelectItem{Attr("name")},
				From:    []TableRef{{Name: "users"}},
				GroupBy: []AttributeRef{{Name: "name"}},
				OrderBy: []OrderBy{{Attribute: AttributeRef{Name: "id"}}},
			},
			ErrNotInGroupBy,
		},
		{
			"unknown order by attribute",
			Statement{
				Kind:    Select,
				Items:   []SelectItem{Star()},
				From:    []TableRef{{Name: "users"}},
				OrderBy: []OrderBy{{Attribute: AttributeRef{Name: "missing"}}},
			},
			ErrAttributeNotFound,
		},
		{
			"sum over varchar",
			Statement{
				Kind:  Select,
				Items: []SelectItem{Aggregate(AggregateExpr{Func: Sum, Arg: &AttributeRef{Name: "name"}})},
				From:  []TableRef{{Name: "users"}},
			},
			ErrInvalidAggregate,
		},
		{
			"unknown aggregate operand",
			Statement{
				Kind:  Select,
				Items: []SelectItem{Aggregate(AggregateExpr{Func: Min, Arg: &AttributeRef{Name: "missing"}})},
				From:  []TableRef{{Name: "users"}},
			},
			ErrAttributeNotFound,
		},
		{
			"valid grouped query",
			Statement{
				Kind:    Select,
				Items:   []SelectItem{Attr("name"), Aggregate(maxScore)},
				From:    []TableRef{{Name: "users"}},
				GroupBy: []AttributeRef{{Name: "name"}},
				Having:  BinaryExpr{Op: Gt, Left: AggregateExpr{Func: Count}, Right: Literal{Value: int64(1)}},
				OrderBy: []OrderBy{{Attribute: AttributeRef{Name: "name"}, Direction: Desc}},
			},
			nil,
		},
	}

	for _, aTestCase := range testCases {
		t.Run(aTestCase.Name, func(t *testing.T) {
			_, err := validator.ValidateSelect(ctx, aTestCase.Stmt)
			if aTestCase.Err != nil {
				assert.ErrorIs(t, err, aTestCase.Err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidator_RewritesAliases(t *testing.T) {
	t.Parallel()

	var (
		ctx       = context.Background()
		aCatalog  = newTestCatalog(t)
		validator = NewValidator(testLogger, aCatalog)
	)
	createTestTable(t, aCatalog, "users", usersDescriptor, nil)
	createTestTable(t, aCatalog, "orders", ordersDescriptor, nil)

	stmt := Statement{
		Kind:    Select,
		Items:   []SelectItem{Attr("u.name"), Aggregate(AggregateExpr{Func: Sum, Arg: &AttributeRef{Table: "o", Name: "amount"}})},
		From:    []TableRef{{Name: "users", Alias: "u"}, {Name: "orders", Alias: "o"}},
		Where:   BinaryExpr{Op: Eq, Left: attr("u", "id"), Right: AttributeRef{Name: "user_id"}},
		GroupBy: []AttributeRef{attr("u", "name")},
		OrderBy: []OrderBy{{Attribute: AttributeRef{Name: "name"}}},
	}

	validated, err := validator.ValidateSelect(ctx, stmt)
	require.NoError(t, err)

	assert.Equal(t, "SELECT users.name, SUM(orders.amount) FROM users AS u, orders AS o WHERE users.id = user_id GROUP BY users.name ORDER BY name", validated.String())
	assert.Equal(t, "SELECT u.name, SUM(o.amount) FROM users AS u, orders AS o WHERE u.id = user_id GROUP BY u.name ORDER BY name", stmt.String(), "input statement is not modified")

	plan, err := BuildPlan(validated)
	require.NoError(t, err)
	assert.Equal(t, "PROJECT([users.name, SUM(orders.amount)], SORT([name], GROUP([users.name], [SUM(orders.amount)], SELECT(users.id = user_id, PRODUCT(TABLE(users), TABLE(orders))))))", plan.String())
}

func TestValidator_ValidateDML(t *testing.T) {
	t.Parallel()

	var (
		ctx       = context.Background()
		aCatalog  = newTestCatalog(t)
		validator = NewValidator(testLogger, aCatalog)
	)
	createTestTable(t, aCatalog, "users", usersDescriptor, nil)

	testCases := []struct {
		Name string
		Stmt Statement
		Err  error
	}{
		{
			"delete from unknown table",
			Statement{Kind: Delete, TableName: "missing"},
			ErrTableNotFound,
		},
		{
			"delete with unknown attribute",
			Statement{Kind: Delete, TableName: "users", Where: BinaryExpr{Op: Eq, Left: AttributeRef{Name: "missing"}, Right: Literal{Value: int64(1)}}},
			ErrAttributeNotFound,
		},
		{
			"update of unknown attribute",
			Statement{Kind: Update, TableName: "users", SetAttribute: "missing", SetExpr: Literal{Value: int64(1)}},
			ErrAttributeNotFound,
		},
		{
			"update with unknown attribute in expression",
			Statement{Kind: Update, TableName: "users", SetAttribute: "score", SetExpr: BinaryExpr{Op: Add, Left: AttributeRef{Name: "bonus"}, Right: Literal{Value: int64(1)}}},
			ErrAttributeNotFound,
		},
		{
			"update with aggregate",
			Statement{Kind: Update, TableName: "users", SetAttribute: "score", SetExpr: AggregateExpr{Func: Count}},
			ErrAggregatesNotAllowed,
		},
		{
			"valid update",
			Statement{
				Kind:         Update,
				TableName:    "users",
				SetAttribute: "users.score",
				SetExpr:      BinaryExpr{Op: Mul, Left: AttributeRef{Name: "score"}, Right: Literal{Value: int64(2)}},
				Where:        BinaryExpr{Op: Eq, Left: attr("users", "active"), Right: Literal{Value: true}},
			},
			nil,
		},
	}

	for _, aTestCase := range testCases {
		t.Run(aTestCase.Name, func(t *testing.T) {
			validated, err := validator.ValidateDML(ctx, aTestCase.Stmt)
			if aTestCase.Err != nil {
				assert.ErrorIs(t, err, aTestCase.Err)
				return
			}
			require.NoError(t, err)
			if aTestCase.Stmt.Kind == Update {
				assert.Equal(t, "score", validated.SetAttribute)
			}
		})
	}
}
