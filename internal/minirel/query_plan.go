package minirel

import (
	"fmt"
	"strings"
)

type NodeKind int

const (
	TableKind NodeKind = iota + 1
	SelectKind
	ProjectKind
	DuplicateKind
	ProductKind
	JoinKind
	GroupKind
	SortKind
	LimitKind
)

func (k NodeKind) String() string {
	switch k {
	case TableKind:
		return "TABLE"
	case SelectKind:
		return "SELECT"
	case ProjectKind:
		return "PROJECT"
	case DuplicateKind:
		return "DUPLICATE"
	case ProductKind:
		return "PRODUCT"
	case JoinKind:
		return "JOIN"
	case GroupKind:
		return "GROUP"
	case SortKind:
		return "SORT"
	case LimitKind:
		return "LIMIT"
	default:
		return "UNKNOWN"
	}
}

type JoinImpl int

const (
	NestedLoopJoin JoinImpl = iota + 1
	OnePassJoin
	MultiPassJoin
)

func (i JoinImpl) String() string {
	switch i {
	case NestedLoopJoin:
		return "nested_loop"
	case OnePassJoin:
		return "one_pass"
	case MultiPassJoin:
		return "multi_pass"
	default:
		return "unknown"
	}
}

// ParseJoinImpl maps a configured join algorithm name to its JoinImpl.
func ParseJoinImpl(name string) (JoinImpl, error) {
	for _, impl := range []JoinImpl{NestedLoopJoin, OnePassJoin, MultiPassJoin} {
		if impl.String() == strings.ToLower(strings.TrimSpace(name)) {
			return impl, nil
		}
	}
	return 0, fmt.Errorf("unknown join algorithm %q", name)
}

type GroupImpl int

const (
	OnePassGroup GroupImpl = iota + 1
	MultiPassGroup
)

func (i GroupImpl) String() string {
	switch i {
	case OnePassGroup:
		return "one_pass"
	case MultiPassGroup:
		return "multi_pass"
	default:
		return "unknown"
	}
}

// ParseGroupImpl maps a configured grouping algorithm name to its GroupImpl.
func ParseGroupImpl(name string) (GroupImpl, error) {
	for _, impl := range []GroupImpl{OnePassGroup, MultiPassGroup} {
		if impl.String() == strings.ToLower(strings.TrimSpace(name)) {
			return impl, nil
		}
	}
	return 0, fmt.Errorf("unknown group algorithm %q", name)
}

// PlanNode is one relational operator of a query plan. Every node owns its
// children, plans are trees.
type PlanNode interface {
	Kind() NodeKind
	Children() []PlanNode
	String() string
}

type TableNode struct {
	Table string
}

type SelectNode struct {
	Condition Expr
	Child     PlanNode
}

type ProjectNode struct {
	Attributes []string
	Child      PlanNode
}

type DuplicateNode struct {
	Child PlanNode
}

type ProductNode struct {
	Left  PlanNode
	Right PlanNode
}

type JoinNode struct {
	Condition Expr
	Impl      JoinImpl
	Left      PlanNode
	Right     PlanNode
}

type GroupNode struct {
	GroupBy    []AttributeRef
	Aggregates []AggregateExpr
	Impl       GroupImpl
	Child      PlanNode
}

type SortNode struct {
	OrderBy []OrderBy
	Child   PlanNode
}

type LimitNode struct {
	Limit int64
	Child PlanNode
}

func (n *TableNode) Kind() NodeKind     { return TableKind }
func (n *SelectNode) Kind() NodeKind    { return SelectKind }
func (n *ProjectNode) Kind() NodeKind   { return ProjectKind }
func (n *DuplicateNode) Kind() NodeKind { return DuplicateKind }
func (n *ProductNode) Kind() NodeKind   { return ProductKind }
func (n *JoinNode) Kind() NodeKind      { return JoinKind }
func (n *GroupNode) Kind() NodeKind     { return GroupKind }
func (n *SortNode) Kind() NodeKind      { return SortKind }
func (n *LimitNode) Kind() NodeKind     { return LimitKind }

func (n *TableNode) Children() []PlanNode     { return nil }
func (n *SelectNode) Children() []PlanNode    { return []PlanNode{n.Child} }
func (n *ProjectNode) Children() []PlanNode   { return []PlanNode{n.Child} }
func (n *DuplicateNode) Children() []PlanNode { return []PlanNode{n.Child} }
func (n *ProductNode) Children() []PlanNode   { return []PlanNode{n.Left, n.Right} }
func (n *JoinNode) Children() []PlanNode      { return []PlanNode{n.Left, n.Right} }
func (n *GroupNode) Children() []PlanNode     { return []PlanNode{n.Child} }
func (n *SortNode) Children() []PlanNode      { return []PlanNode{n.Child} }
func (n *LimitNode) Children() []PlanNode     { return []PlanNode{n.Child} }

func (n *TableNode) String() string {
	return fmt.Sprintf("TABLE(%s)", n.Table)
}

func (n *SelectNode) String() string {
	return fmt.Sprintf("SELECT(%s, %s)", n.Condition, n.Child)
}

func (n *ProjectNode) String() string {
	return fmt.Sprintf("PROJECT([%s], %s)", strings.Join(n.Attributes, ", "), n.Child)
}

func (n *DuplicateNode) String() string {
	return fmt.Sprintf("DUPLICATE(%s)", n.Child)
}

func (n *ProductNode) String() string {
	return fmt.Sprintf("PRODUCT(%s, %s)", n.Left, n.Right)
}

func (n *JoinNode) String() string {
	return fmt.Sprintf("JOIN(%s, %s, %s)", n.Condition, n.Left, n.Right)
}

func (n *GroupNode) String() string {
	return fmt.Sprintf("GROUP([%s], [%s], %s)", joinStrings(n.GroupBy), joinStrings(n.Aggregates), n.Child)
}

func (n *SortNode) String() string {
	return fmt.Sprintf("SORT([%s], %s)", joinStrings(n.OrderBy), n.Child)
}

func (n *LimitNode) String() string {
	return fmt.Sprintf("LIMIT(%d, %s)", n.Limit, n.Child)
}

// BuildPlan turns a validated SELECT into an operator tree. Clauses wrap the
// plan in a fixed order: FROM, WHERE, GROUP BY, HAVING, ORDER BY, select
// list, DISTINCT, LIMIT.
func BuildPlan(stmt Statement) (PlanNode, error) {
	if stmt.Kind != Select {
		return nil, fmt.Errorf("cannot plan %s statement", stmt.Kind)
	}
	if len(stmt.From) == 0 {
		return nil, fmt.Errorf("%w: empty FROM clause", ErrTableNotFound)
	}

	var root PlanNode = &TableNode{Table: stmt.From[0].Name}
	for _, aRef := range stmt.From[1:] {
		root = &ProductNode{Left: root, Right: &TableNode{Table: aRef.Name}}
	}

	if stmt.Where != nil {
		root = &SelectNode{Condition: stmt.Where, Child: root}
	}

	if stmt.IsGrouped() {
		root = &GroupNode{
			GroupBy:    stmt.GroupBy,
			Aggregates: stmt.Aggregates(),
			Child:      root,
		}
	}

	if stmt.Having != nil {
		root = &SelectNode{Condition: stmt.Having, Child: root}
	}

	if len(stmt.OrderBy) > 0 {
		root = &SortNode{OrderBy: stmt.OrderBy, Child: root}
	}

	if !stmt.IsStar() {
		attributes := make([]string, 0, len(stmt.Items))
		for _, anItem := range stmt.Items {
			attributes = append(attributes, anItem.Name())
		}
		root = &ProjectNode{Attributes: attributes, Child: root}
	}

	if stmt.Distinct {
		root = &DuplicateNode{Child: root}
	}

	if stmt.HasLimit {
		root = &LimitNode{Limit: stmt.Limit, Child: root}
	}

	return root, nil
}
