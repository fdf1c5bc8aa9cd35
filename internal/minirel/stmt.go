package minirel

import (
	"fmt"
	"slices"
	"strings"

	"github.com/RichardKnop/minirel/internal/record"
)

type StatementKind int

const (
	CreateTable StatementKind = iota + 1
	DropTable
	CreateIndex
	DropIndex
	Insert
	Delete
	Update
	Select
)

func (s StatementKind) String() string {
	switch s {
	case CreateTable:
		return "CREATE TABLE"
	case DropTable:
		return "DROP TABLE"
	case CreateIndex:
		return "CREATE INDEX"
	case DropIndex:
		return "DROP INDEX"
	case Insert:
		return "INSERT"
	case Delete:
		return "DELETE"
	case Update:
		return "UPDATE"
	case Select:
		return "SELECT"
	default:
		return "UNKNOWN"
	}
}

// Column is a column definition of CREATE TABLE. Length is only set for VARCHAR.
type Column struct {
	Name   string
	Type   record.Type
	Length int
}

func (c Column) Field() record.Field {
	return record.NewField(c.Name, c.Type, c.Length)
}

// TableRef is one entry of the FROM clause.
type TableRef struct {
	Name  string
	Alias string
}

// Qualifier is the name attributes of this table are qualified with.
func (r TableRef) Qualifier() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

type SelectItemKind int

const (
	StarItem SelectItemKind = iota + 1
	AttributeItem
	TableAttributeItem
	AggregateItem
)

type SelectItem struct {
	Kind      SelectItemKind
	Attribute AttributeRef
	Aggregate AggregateExpr
}

func Star() SelectItem {
	return SelectItem{Kind: StarItem}
}

func Attr(name string) SelectItem {
	table, attr := record.SplitQualified(name)
	if table != "" {
		return SelectItem{Kind: TableAttributeItem, Attribute: AttributeRef{Table: table, Name: attr}}
	}
	return SelectItem{Kind: AttributeItem, Attribute: AttributeRef{Name: attr}}
}

func Aggregate(aggregate AggregateExpr) SelectItem {
	return SelectItem{Kind: AggregateItem, Aggregate: aggregate}
}

// Name is the name of the output field the item produces.
func (i SelectItem) Name() string {
	switch i.Kind {
	case StarItem:
		return "*"
	case AggregateItem:
		return i.Aggregate.String()
	default:
		return i.Attribute.String()
	}
}

type Direction int

const (
	Asc Direction = iota + 1
	Desc
)

func (d Direction) String() string {
	switch d {
	case Asc:
		return "ASC"
	case Desc:
		return "DESC"
	default:
		return "UNKNOWN"
	}
}

type OrderBy struct {
	Attribute AttributeRef
	Direction Direction
}

func (o OrderBy) String() string {
	if o.Direction == Desc {
		return o.Attribute.String() + " DESC"
	}
	return o.Attribute.String()
}

type Statement struct {
	Kind      StatementKind
	TableName string // CREATE/DROP TABLE, CREATE INDEX, INSERT, DELETE, UPDATE
	IndexName string // CREATE/DROP INDEX
	Volatile  bool
	Columns   []Column // CREATE TABLE, indexed column names of CREATE INDEX
	Values    []any    // INSERT
	// UPDATE t SET SetAttribute = SetExpr
	SetAttribute string
	SetExpr      Expr
	Where        Expr // SELECT, DELETE, UPDATE
	Distinct     bool
	Items        []SelectItem
	From         []TableRef
	GroupBy      []AttributeRef
	Having       Expr
	OrderBy      []OrderBy
	HasLimit     bool
	Limit        int64
}

// IsStar reports whether the select list is exactly "*".
func (s Statement) IsStar() bool {
	return len(s.Items) == 1 && s.Items[0].Kind == StarItem
}

// Aggregates returns the distinct aggregates of the select list and HAVING,
// in order of first appearance.
func (s Statement) Aggregates() []AggregateExpr {
	var aggregates []AggregateExpr
	add := func(anAggregate AggregateExpr) {
		if !slices.ContainsFunc(aggregates, func(existing AggregateExpr) bool {
			return existing.String() == anAggregate.String()
		}) {
			aggregates = append(aggregates, anAggregate)
		}
	}
	for _, anItem := range s.Items {
		if anItem.Kind == AggregateItem {
			add(anItem.Aggregate)
		}
	}
	_ = Walk(s.Having, func(anExpr Expr) error {
		if anAggregate, ok := anExpr.(AggregateExpr); ok {
			add(anAggregate)
		}
		return nil
	})
	return aggregates
}

// IsGrouped reports whether the SELECT needs a GROUP node.
func (s Statement) IsGrouped() bool {
	return len(s.GroupBy) > 0 || len(s.Aggregates()) > 0
}

// Clone copies the slices of the statement so a rewrite never touches a
// statement shared through the statement cache.
func (s Statement) Clone() Statement {
	s.Columns = slices.Clone(s.Columns)
	s.Values = slices.Clone(s.Values)
	s.Items = slices.Clone(s.Items)
	s.From = slices.Clone(s.From)
	s.GroupBy = slices.Clone(s.GroupBy)
	s.OrderBy = slices.Clone(s.OrderBy)
	return s
}

func (s Statement) String() string {
	switch s.Kind {
	case Select:
		var b strings.Builder
		b.WriteString("SELECT ")
		if s.Distinct {
			b.WriteString("DISTINCT ")
		}
		names := make([]string, 0, len(s.Items))
		for _, anItem := range s.Items {
			names = append(names, anItem.Name())
		}
		b.WriteString(strings.Join(names, ", "))
		tables := make([]string, 0, len(s.From))
		for _, aTable := range s.From {
			if aTable.Alias != "" {
				tables = append(tables, aTable.Name+" AS "+aTable.Alias)
				continue
			}
			tables = append(tables, aTable.Name)
		}
		fmt.Fprintf(&b, " FROM %s", strings.Join(tables, ", "))
		if s.Where != nil {
			fmt.Fprintf(&b, " WHERE %s", s.Where)
		}
		if len(s.GroupBy) > 0 {
			fmt.Fprintf(&b, " GROUP BY %s", joinStrings(s.GroupBy))
		}
		if s.Having != nil {
			fmt.Fprintf(&b, " HAVING %s", s.Having)
		}
		if len(s.OrderBy) > 0 {
			fmt.Fprintf(&b, " ORDER BY %s", joinStrings(s.OrderBy))
		}
		if s.HasLimit {
			fmt.Fprintf(&b, " LIMIT %d", s.Limit)
		}
		return b.String()
	default:
		if s.TableName != "" {
			return fmt.Sprintf("%s %s", s.Kind, s.TableName)
		}
		return fmt.Sprintf("%s %s", s.Kind, s.IndexName)
	}
}

func joinStrings[T fmt.Stringer](items []T) string {
	parts := make([]string, 0, len(items))
	for _, anItem := range items {
		parts = append(parts, anItem.String())
	}
	return strings.Join(parts, ", ")
}
