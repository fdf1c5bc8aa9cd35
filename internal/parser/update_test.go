package parser

import (
	"testing"

	"github.com/RichardKnop/minirel/internal/minirel"
)

func TestParse_Update(t *testing.T) {
	t.Parallel()

	testCases := []testCase{
		{
			"Empty UPDATE fails",
			"UPDATE",
			nil,
			errEmptyTableName,
		},
		{
			"UPDATE without SET fails",
			"UPDATE a b = 1",
			nil,
			errUpdateExpectedSet,
		},
		{
			"UPDATE without field fails",
			"UPDATE a SET",
			nil,
			errNoFieldsToUpdate,
		},
		{
			"UPDATE without equals fails",
			"UPDATE a SET b 1",
			nil,
			errUpdateExpectedEquals,
		},
		{
			"UPDATE without value fails",
			"UPDATE a SET b =",
			nil,
			errExpectedExpression,
		},
		{
			"UPDATE with empty WHERE fails",
			"UPDATE a SET b = 1 WHERE",
			nil,
			errEmptyWhereClause,
		},
		{
			"UPDATE works",
			"UPDATE a SET b = 'hello';",
			[]minirel.Statement{
				{
					Kind:         minirel.Update,
					TableName:    "a",
					SetAttribute: "b",
					SetExpr:      minirel.Literal{Value: "hello"},
				},
			},
			nil,
		},
		{
			"UPDATE with expression and WHERE works",
			"UPDATE a SET a.b = b * 2 + 1 WHERE c = TRUE",
			[]minirel.Statement{
				{
					Kind:         minirel.Update,
					TableName:    "a",
					SetAttribute: "a.b",
					SetExpr: minirel.BinaryExpr{
						Op: minirel.Add,
						Left: minirel.BinaryExpr{
							Op:    minirel.Mul,
							Left:  minirel.AttributeRef{Name: "b"},
							Right: minirel.Literal{Value: int64(2)},
						},
						Right: minirel.Literal{Value: int64(1)},
					},
					Where: minirel.BinaryExpr{
						Op:    minirel.Eq,
						Left:  minirel.AttributeRef{Name: "c"},
						Right: minirel.Literal{Value: true},
					},
				},
			},
			nil,
		},
	}

	runTestCases(t, testCases)
}

func TestParse_Delete(t *testing.T) {
	t.Parallel()

	testCases := []testCase{
		{
			"Empty DELETE fails",
			"DELETE FROM",
			nil,
			errEmptyTableName,
		},
		{
			"DELETE without WHERE works",
			"DELETE FROM a",
			[]minirel.Statement{
				{
					Kind:      minirel.Delete,
					TableName: "a",
				},
			},
			nil,
		},
		{
			"DELETE with WHERE works",
			"delete from a where b != 'x';",
			[]minirel.Statement{
				{
					Kind:      minirel.Delete,
					TableName: "a",
					Where: minirel.BinaryExpr{
						Op:    minirel.Ne,
						Left:  minirel.AttributeRef{Name: "b"},
						Right: minirel.Literal{Value: "x"},
					},
				},
			},
			nil,
		},
		{
			"DELETE with trailing garbage fails",
			"DELETE FROM a b",
			nil,
			errExpectedSemicolon,
		},
	}

	runTestCases(t, testCases)
}
