package parser

import (
	"fmt"
	"strconv"

	"github.com/RichardKnop/minirel/internal/minirel"
)

var (
	errSelectWithoutFields  = fmt.Errorf("at SELECT: expected field to SELECT")
	errSelectExpectedFrom   = fmt.Errorf("at SELECT: expected FROM")
	errSelectStarWithFields = fmt.Errorf("at SELECT: * cannot be combined with other fields")
	errSelectExpectedAlias  = fmt.Errorf("at SELECT: expected alias after AS")
	errGroupByWithoutFields = fmt.Errorf("at GROUP BY: expected field to group by")
	errHavingWithoutGroupBy = fmt.Errorf("at HAVING: HAVING needs GROUP BY")
	errOrderByWithoutFields = fmt.Errorf("at ORDER BY: expected field to order by")
	errInvalidLimit         = fmt.Errorf("at LIMIT: expected a non-negative integer")
)

func (p *parser) doParseSelect() error {
	if err := p.doParseSelectItems(); err != nil {
		return err
	}
	if !p.expect("FROM") {
		return errSelectExpectedFrom
	}
	if err := p.doParseFrom(); err != nil {
		return err
	}
	if err := p.doParseWhere(); err != nil {
		return err
	}
	if err := p.doParseGroupBy(); err != nil {
		return err
	}
	if err := p.doParseOrderBy(); err != nil {
		return err
	}
	return p.doParseLimit()
}

func (p *parser) doParseSelectItems() error {
	if p.expect("*") {
		p.Items = append(p.Items, minirel.Star())
		if p.peek() == "," {
			return errSelectStarWithFields
		}
		return nil
	}

	for {
		token := p.peek()
		switch {
		case token == "*":
			return errSelectStarWithFields
		case isAggregate(token):
			anExpr, err := p.doParseAggregate()
			if err != nil {
				return err
			}
			switch v := anExpr.(type) {
			case minirel.AggregateExpr:
				p.Items = append(p.Items, minirel.Aggregate(v))
			case minirel.AttributeRef:
				p.Items = append(p.Items, minirel.Attr(v.String()))
			}
		case isIdentifier(token):
			p.Items = append(p.Items, minirel.Attr(token))
			p.pop()
		default:
			return errSelectWithoutFields
		}

		if !p.expect(",") {
			return nil
		}
	}
}

func (p *parser) doParseFrom() error {
	for {
		tableName := p.peek()
		if !isTableName(tableName) {
			return errEmptyTableName
		}
		p.pop()
		aTable := minirel.TableRef{Name: tableName}

		if p.expect("AS") {
			alias := p.peek()
			if !isTableName(alias) {
				return errSelectExpectedAlias
			}
			aTable.Alias = alias
			p.pop()
		} else if alias := p.peek(); isTableName(alias) {
			aTable.Alias = alias
			p.pop()
		}
		p.From = append(p.From, aTable)

		if !p.expect(",") {
			return nil
		}
	}
}

func (p *parser) doParseGroupBy() error {
	if p.peek() == "HAVING" {
		return errHavingWithoutGroupBy
	}
	if !p.expect("GROUP BY") {
		return nil
	}

	for {
		field := p.peek()
		if !isIdentifier(field) {
			return errGroupByWithoutFields
		}
		p.GroupBy = append(p.GroupBy, attributeRef(field))
		p.pop()
		if !p.expect(",") {
			break
		}
	}

	if !p.expect("HAVING") {
		return nil
	}
	condition, err := p.doParseExpr()
	if err != nil {
		return fmt.Errorf("at HAVING: %w", err)
	}
	p.Having = condition
	return nil
}

func (p *parser) doParseOrderBy() error {
	if !p.expect("ORDER BY") {
		return nil
	}

	for {
		field := p.peek()
		if !isIdentifier(field) {
			return errOrderByWithoutFields
		}
		p.pop()

		anOrder := minirel.OrderBy{Attribute: attributeRef(field), Direction: minirel.Asc}
		switch p.peek() {
		case "ASC":
			p.pop()
		case "DESC":
			anOrder.Direction = minirel.Desc
			p.pop()
		}
		p.OrderBy = append(p.OrderBy, anOrder)

		if !p.expect(",") {
			return nil
		}
	}
}

func (p *parser) doParseLimit() error {
	if !p.expect("LIMIT") {
		return nil
	}
	limit, err := strconv.ParseInt(p.peek(), 10, 64)
	if err != nil || limit < 0 {
		return errInvalidLimit
	}
	p.pop()
	p.HasLimit = true
	p.Limit = limit
	return nil
}
