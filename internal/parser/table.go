package parser

import (
	"fmt"
	"strconv"

	"github.com/RichardKnop/minirel/internal/minirel"
	"github.com/RichardKnop/minirel/internal/record"
)

// MaxVarcharLength keeps a single VARCHAR well inside one page.
const MaxVarcharLength = 255

var (
	errCreateTableNoColumns        = fmt.Errorf("at CREATE TABLE: no columns specified")
	errCreateTableInvalidColumnDef = fmt.Errorf("at CREATE TABLE: invalid column definition")
	errCreateTableExpectedParens   = fmt.Errorf("at CREATE TABLE: expected opening parens")
)

func (p *parser) doParseCreateTable() error {
	tableName := p.peek()
	if !isTableName(tableName) {
		return errEmptyTableName
	}
	p.TableName = tableName
	p.pop()

	if !p.expect("(") {
		return errCreateTableExpectedParens
	}

	for {
		identifier := p.peek()
		if !isIdentifier(identifier) {
			return errCreateTableNoColumns
		}
		p.pop()

		aColumn, err := p.doParseColumnDef(identifier)
		if err != nil {
			return err
		}
		p.Columns = append(p.Columns, aColumn)

		switch p.pop() {
		case ",":
			continue
		case ")":
			return nil
		default:
			return fmt.Errorf("at CREATE TABLE: expected comma or closing parens")
		}
	}
}

func (p *parser) doParseColumnDef(name string) (minirel.Column, error) {
	aColumn := minirel.Column{Name: name}
	switch p.peek() {
	case "INT":
		aColumn.Type = record.Int
	case "FLOAT":
		aColumn.Type = record.Float
	case "BOOLEAN":
		aColumn.Type = record.Boolean
	case "DATETIME":
		aColumn.Type = record.Datetime
	case "VARCHAR(":
		aColumn.Type = record.Varchar
	default:
		return minirel.Column{}, errCreateTableInvalidColumnDef
	}
	p.pop()

	if aColumn.Type != record.Varchar {
		return aColumn, nil
	}

	sizeToken := p.peek()
	size, err := strconv.Atoi(sizeToken)
	if err != nil {
		return minirel.Column{}, fmt.Errorf("at CREATE TABLE: varchar size '%s' must be an integer", sizeToken)
	}
	if size <= 0 || size > MaxVarcharLength {
		return minirel.Column{}, fmt.Errorf("at CREATE TABLE: varchar size must be > 0 and <= %d", MaxVarcharLength)
	}
	p.pop()
	aColumn.Length = size

	if !p.expect(")") {
		return minirel.Column{}, fmt.Errorf("at CREATE TABLE: expecting closing parenthesis after varchar size")
	}
	return aColumn, nil
}

func (p *parser) doParseDropTable() error {
	tableName := p.peek()
	if !isTableName(tableName) {
		return errEmptyTableName
	}
	p.TableName = tableName
	p.pop()
	return nil
}
