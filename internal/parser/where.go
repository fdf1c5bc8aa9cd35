package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/RichardKnop/minirel/internal/minirel"
)

var (
	errEmptyWhereClause   = fmt.Errorf("at WHERE: empty WHERE clause")
	errExpectedExpression = fmt.Errorf("expected expression")
	errUnbalancedParens   = fmt.Errorf("expected closing parens")
	errInvalidAggregate   = fmt.Errorf("invalid aggregate")
)

var comparisonOperators = map[string]minirel.Operator{
	"=":  minirel.Eq,
	"!=": minirel.Ne,
	"<>": minirel.Ne,
	"<":  minirel.Lt,
	"<=": minirel.Lte,
	">":  minirel.Gt,
	">=": minirel.Gte,
}

var aggregateFuncs = map[string]minirel.AggregateFunc{
	"COUNT": minirel.Count,
	"SUM":   minirel.Sum,
	"AVG":   minirel.Avg,
	"MIN":   minirel.Min,
	"MAX":   minirel.Max,
}

// doParseWhere parses an optional WHERE clause into p.Where.
func (p *parser) doParseWhere() error {
	if !p.expect("WHERE") {
		return nil
	}
	if p.peek() == "" || p.peek() == ";" {
		return errEmptyWhereClause
	}
	condition, err := p.doParseExpr()
	if err != nil {
		return fmt.Errorf("at WHERE: %w", err)
	}
	p.Where = condition
	return nil
}

// doParseExpr parses a full expression. From loosest to tightest binding:
// OR, AND, NOT, comparisons, + and -, * and /, unary minus.
func (p *parser) doParseExpr() (minirel.Expr, error) {
	return p.doParseOr()
}

func (p *parser) doParseOr() (minirel.Expr, error) {
	left, err := p.doParseAnd()
	if err != nil {
		return nil, err
	}
	for p.expect("OR") {
		right, err := p.doParseAnd()
		if err != nil {
			return nil, err
		}
		left = minirel.BinaryExpr{Op: minirel.Or, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) doParseAnd() (minirel.Expr, error) {
	left, err := p.doParseNot()
	if err != nil {
		return nil, err
	}
	for p.expect("AND") {
		right, err := p.doParseNot()
		if err != nil {
			return nil, err
		}
		left = minirel.BinaryExpr{Op: minirel.And, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) doParseNot() (minirel.Expr, error) {
	if !p.expect("NOT") {
		return p.doParseComparison()
	}
	anExpr, err := p.doParseNot()
	if err != nil {
		return nil, err
	}
	return minirel.NotExpr{Expr: anExpr}, nil
}

func (p *parser) doParseComparison() (minirel.Expr, error) {
	left, err := p.doParseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOperators[p.peek()]
	if !ok {
		return left, nil
	}
	p.pop()
	right, err := p.doParseAdditive()
	if err != nil {
		return nil, err
	}
	return minirel.BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *parser) doParseAdditive() (minirel.Expr, error) {
	left, err := p.doParseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op minirel.Operator
		switch p.peek() {
		case "+":
			op = minirel.Add
		case "-":
			op = minirel.Sub
		default:
			return left, nil
		}
		p.pop()
		right, err := p.doParseTerm()
		if err != nil {
			return nil, err
		}
		left = minirel.BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) doParseTerm() (minirel.Expr, error) {
	left, err := p.doParseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op minirel.Operator
		switch p.peek() {
		case "*":
			op = minirel.Mul
		case "/":
			op = minirel.Div
		default:
			return left, nil
		}
		p.pop()
		right, err := p.doParseUnary()
		if err != nil {
			return nil, err
		}
		left = minirel.BinaryExpr{Op: op, Left: left, Right: right}
	}
}

// doParseUnary folds a minus in front of a number into the literal, any
// other operand becomes 0 - operand.
func (p *parser) doParseUnary() (minirel.Expr, error) {
	if !p.expect("-") {
		return p.doParsePrimary()
	}
	operand, err := p.doParseUnary()
	if err != nil {
		return nil, err
	}
	if aLiteral, ok := operand.(minirel.Literal); ok {
		switch aLiteral.Value.(type) {
		case int64, float64:
			return minirel.Literal{Value: negate(aLiteral.Value)}, nil
		}
	}
	return minirel.BinaryExpr{Op: minirel.Sub, Left: minirel.Literal{Value: int64(0)}, Right: operand}, nil
}

func (p *parser) doParsePrimary() (minirel.Expr, error) {
	token := p.peek()
	switch {
	case token == "(":
		p.pop()
		anExpr, err := p.doParseExpr()
		if err != nil {
			return nil, err
		}
		if !p.expect(")") {
			return nil, errUnbalancedParens
		}
		return anExpr, nil
	case token == "TRUE" || token == "FALSE" || isQuoted(token) || isNumber(token) || p.atUnterminatedString():
		return p.doParseLiteral()
	case isAggregate(token):
		return p.doParseAggregate()
	case isIdentifier(token):
		p.pop()
		return attributeRef(token), nil
	default:
		return nil, errExpectedExpression
	}
}

// isAggregate recognises an aggregate function name. A column may share the
// name, so the opening parens has to follow immediately.
func isAggregate(token string) bool {
	_, ok := aggregateFuncs[strings.ToUpper(token)]
	return ok
}

func (p *parser) doParseAggregate() (minirel.Expr, error) {
	name := p.pop()
	if !p.expect("(") {
		// a plain attribute named like an aggregate
		return attributeRef(name), nil
	}

	anAggregate := minirel.AggregateExpr{Func: aggregateFuncs[strings.ToUpper(name)]}
	if p.expect("*") {
		if anAggregate.Func != minirel.Count {
			return nil, fmt.Errorf("%w: %s(*)", errInvalidAggregate, anAggregate.Func)
		}
	} else {
		argument := p.peek()
		if !isIdentifier(argument) {
			return nil, fmt.Errorf("%w: %s expects an attribute", errInvalidAggregate, anAggregate.Func)
		}
		p.pop()
		ref := attributeRef(argument)
		anAggregate.Arg = &ref
	}

	if !p.expect(")") {
		return nil, errUnbalancedParens
	}
	return anAggregate, nil
}

func attributeRef(identifier string) minirel.AttributeRef {
	table, name, ok := strings.Cut(identifier, ".")
	if !ok {
		return minirel.AttributeRef{Name: identifier}
	}
	return minirel.AttributeRef{Table: table, Name: name}
}

func isQuoted(token string) bool {
	return len(token) >= 2 && token[0] == '\'' && token[len(token)-1] == '\''
}

func unquote(token string) string {
	return token[1 : len(token)-1]
}

func isNumber(token string) bool {
	return len(token) > 0 && unicode.IsDigit(rune(token[0]))
}

// parseNumber keeps integers as int64, anything with a decimal point is a
// float64.
func parseNumber(token string) (any, error) {
	if strings.Contains(token, ".") {
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func negate(value any) any {
	switch v := value.(type) {
	case int64:
		return -v
	case float64:
		return -v
	default:
		return value
	}
}
