package parser

import (
	"errors"
	"fmt"

	"github.com/RichardKnop/minirel/internal/minirel"
)

var (
	errNoRowsToInsert        = fmt.Errorf("at INSERT INTO: need at least one row to insert")
	errInsertExpectedValues  = fmt.Errorf("at INSERT INTO: expected VALUES")
	errInsertExpectedLiteral = fmt.Errorf("at INSERT INTO: expected a literal value")
	errInsertUnclosedValues  = fmt.Errorf("at INSERT INTO: expected comma or closing parens")
)

func (p *parser) doParseInsert() error {
	tableName := p.peek()
	if !isTableName(tableName) {
		return errEmptyTableName
	}
	p.TableName = tableName
	p.pop()

	if !p.expect("VALUES") {
		return errInsertExpectedValues
	}
	if !p.expect("(") {
		return errNoRowsToInsert
	}

	for {
		value, err := p.doParseLiteral()
		if errors.Is(err, errUnterminatedString) {
			return fmt.Errorf("at INSERT INTO: %w", err)
		}
		if err != nil {
			return errInsertExpectedLiteral
		}
		p.Values = append(p.Values, value.Value)

		switch p.pop() {
		case ",":
			continue
		case ")":
			return nil
		default:
			return errInsertUnclosedValues
		}
	}
}

// doParseLiteral parses a possibly negative number, a quoted string or a
// boolean.
func (p *parser) doParseLiteral() (minirel.Literal, error) {
	negative := p.expect("-")

	token := p.peek()
	switch {
	case token == "TRUE" || token == "FALSE":
		if negative {
			return minirel.Literal{}, errExpectedExpression
		}
		p.pop()
		return minirel.Literal{Value: token == "TRUE"}, nil
	case isQuoted(token):
		if negative {
			return minirel.Literal{}, errExpectedExpression
		}
		p.pop()
		return minirel.Literal{Value: unquote(token)}, nil
	case isNumber(token):
		p.pop()
		value, err := parseNumber(token)
		if err != nil {
			return minirel.Literal{}, err
		}
		if negative {
			value = negate(value)
		}
		return minirel.Literal{Value: value}, nil
	case p.atUnterminatedString():
		return minirel.Literal{}, errUnterminatedString
	default:
		return minirel.Literal{}, errExpectedExpression
	}
}
