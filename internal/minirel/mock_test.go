package minirel

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/RichardKnop/minirel/internal/storage"
)

// MockParser is a testify mock of Parser.
type MockParser struct {
	mock.Mock
}

func (_m *MockParser) Parse(ctx context.Context, sql string) ([]Statement, error) {
	ret := _m.Called(ctx, sql)
	var statements []Statement
	if ret.Get(0) != nil {
		statements = ret.Get(0).([]Statement)
	}
	return statements, ret.Error(1)
}

// MockOperators is a testify mock of Operators.
type MockOperators struct {
	mock.Mock
}

func (_m *MockOperators) SelectScan(ctx context.Context, in storage.FileID, condition Expr) (storage.FileID, error) {
	ret := _m.Called(ctx, in, condition)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) Project(ctx context.Context, in storage.FileID, attributes []string) (storage.FileID, error) {
	ret := _m.Called(ctx, in, attributes)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) DuplicateElimination(ctx context.Context, in storage.FileID) (storage.FileID, error) {
	ret := _m.Called(ctx, in)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) Product(ctx context.Context, left, right storage.FileID) (storage.FileID, error) {
	ret := _m.Called(ctx, left, right)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) JoinOnePass(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error) {
	ret := _m.Called(ctx, left, right, condition)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) JoinMultiPass(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error) {
	ret := _m.Called(ctx, left, right, condition)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) JoinNestedLoops(ctx context.Context, left, right storage.FileID, condition Expr) (storage.FileID, error) {
	ret := _m.Called(ctx, left, right, condition)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) GroupOnePass(ctx context.Context, in storage.FileID, groupBy []AttributeRef, aggregates []AggregateExpr) (storage.FileID, error) {
	ret := _m.Called(ctx, in, groupBy, aggregates)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) GroupMultiPass(ctx context.Context, in storage.FileID, groupBy []AttributeRef, aggregates []AggregateExpr) (storage.FileID, error) {
	ret := _m.Called(ctx, in, groupBy, aggregates)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) SortTable(ctx context.Context, in storage.FileID, orderBy []OrderBy) (storage.FileID, error) {
	ret := _m.Called(ctx, in, orderBy)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}

func (_m *MockOperators) LimitTable(ctx context.Context, in storage.FileID, limit int64) (storage.FileID, error) {
	ret := _m.Called(ctx, in, limit)
	return ret.Get(0).(storage.FileID), ret.Error(1)
}
