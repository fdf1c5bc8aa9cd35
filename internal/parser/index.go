package parser

import (
	"fmt"

	"github.com/RichardKnop/minirel/internal/minirel"
)

var (
	errCreateIndexExpectedOpeningParens = fmt.Errorf("at CREATE INDEX: expected opening parens")
	errCreateIndexNoColumns             = fmt.Errorf("at CREATE INDEX: no columns specified")
	errCreateIndexNoName                = fmt.Errorf("at CREATE INDEX: expected index name")
	errDropIndexNoName                  = fmt.Errorf("at DROP INDEX: expected index name")
)

// Indexes are parsed so scripts written for other engines still run, the
// database accepts them without building anything.
func (p *parser) doParseCreateIndex() error {
	indexName := p.peek()
	if !isTableName(indexName) {
		return errCreateIndexNoName
	}
	p.IndexName = indexName
	p.pop()

	if !p.expect("ON") {
		return fmt.Errorf("at CREATE INDEX: expected ON")
	}

	tableName := p.peek()
	if !isTableName(tableName) {
		return fmt.Errorf("at CREATE INDEX: expected table name")
	}
	p.TableName = tableName
	p.pop()

	if !p.expect("(") {
		return errCreateIndexExpectedOpeningParens
	}

	for {
		identifier := p.peek()
		if !isIdentifier(identifier) {
			return errCreateIndexNoColumns
		}
		p.Columns = append(p.Columns, minirel.Column{Name: identifier})
		p.pop()

		switch p.pop() {
		case ",":
			continue
		case ")":
			return nil
		default:
			return fmt.Errorf("at CREATE INDEX: expected comma or closing parens")
		}
	}
}

func (p *parser) doParseDropIndex() error {
	indexName := p.peek()
	if !isTableName(indexName) {
		return errDropIndexNoName
	}
	p.IndexName = indexName
	p.pop()
	return nil
}
