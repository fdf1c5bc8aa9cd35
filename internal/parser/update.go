package parser

import (
	"fmt"
)

var (
	errUpdateExpectedSet    = fmt.Errorf("at UPDATE: expected SET")
	errNoFieldsToUpdate     = fmt.Errorf("at UPDATE: expected field to update")
	errUpdateExpectedEquals = fmt.Errorf("at UPDATE: expected '='")
)

func (p *parser) doParseUpdate() error {
	tableName := p.peek()
	if !isTableName(tableName) {
		return errEmptyTableName
	}
	p.TableName = tableName
	p.pop()

	if !p.expect("SET") {
		return errUpdateExpectedSet
	}

	field := p.peek()
	if !isIdentifier(field) {
		return errNoFieldsToUpdate
	}
	p.SetAttribute = field
	p.pop()

	if !p.expect("=") {
		return errUpdateExpectedEquals
	}

	value, err := p.doParseExpr()
	if err != nil {
		return fmt.Errorf("at UPDATE: %w", err)
	}
	p.SetExpr = value

	return p.doParseWhere()
}

func (p *parser) doParseDelete() error {
	tableName := p.peek()
	if !isTableName(tableName) {
		return errEmptyTableName
	}
	p.TableName = tableName
	p.pop()

	return p.doParseWhere()
}
