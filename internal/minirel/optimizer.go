package minirel

import (
	"go.uber.org/zap"
)

type OptimizerOptions struct {
	// RewriteJoins turns SELECT over PRODUCT into JOIN and moves conjuncts
	// down to the lowest join covering their tables. Off by default, the
	// logical pass is then the identity.
	RewriteJoins bool
	Join         JoinImpl
	Group        GroupImpl
}

func DefaultOptimizerOptions() OptimizerOptions {
	return OptimizerOptions{
		Join:  NestedLoopJoin,
		Group: OnePassGroup,
	}
}

// Optimizer holds the logical and physical planning passes. Neither pass
// uses cost estimates.
type Optimizer struct {
	opts   OptimizerOptions
	logger *zap.Logger
}

func NewOptimizer(logger *zap.Logger, opts OptimizerOptions) *Optimizer {
	if opts.Join == 0 {
		opts.Join = NestedLoopJoin
	}
	if opts.Group == 0 {
		opts.Group = OnePassGroup
	}
	return &Optimizer{
		opts:   opts,
		logger: logger,
	}
}

func (o *Optimizer) Optimize(plan PlanNode) PlanNode {
	plan = o.Logical(plan)
	o.Physical(plan)

	o.logger.Sugar().With("plan", plan.String()).Debug("optimized plan")

	return plan
}

// Logical rewrites the operator tree.
func (o *Optimizer) Logical(plan PlanNode) PlanNode {
	if !o.opts.RewriteJoins {
		return plan
	}
	return rewriteJoins(plan)
}

func rewriteJoins(plan PlanNode) PlanNode {
	switch n := plan.(type) {
	case *SelectNode:
		if product, ok := n.Child.(*ProductNode); ok {
			return pushDown(product, conjuncts(n.Condition, nil))
		}
		n.Child = rewriteJoins(n.Child)
	case *ProjectNode:
		n.Child = rewriteJoins(n.Child)
	case *DuplicateNode:
		n.Child = rewriteJoins(n.Child)
	case *ProductNode:
		n.Left = rewriteJoins(n.Left)
		n.Right = rewriteJoins(n.Right)
	case *JoinNode:
		n.Left = rewriteJoins(n.Left)
		n.Right = rewriteJoins(n.Right)
	case *GroupNode:
		n.Child = rewriteJoins(n.Child)
	case *SortNode:
		n.Child = rewriteJoins(n.Child)
	case *LimitNode:
		n.Child = rewriteJoins(n.Child)
	}
	return plan
}

// pushDown places every conjunct on the lowest product covering the tables
// it references and turns products holding conjuncts into joins. Conjuncts
// are only moved into a child that is itself a product: base tables carry
// unqualified field names, a select below a join would lose the qualifier.
func pushDown(product *ProductNode, predicates []Expr) PlanNode {
	var (
		leftTables  = tablesOf(product.Left)
		rightTables = tablesOf(product.Right)
		left        []Expr
		right       []Expr
		here        []Expr
	)
	_, leftIsProduct := product.Left.(*ProductNode)
	_, rightIsProduct := product.Right.(*ProductNode)

	for _, predicate := range predicates {
		tables, ok := referencedTables(predicate)
		switch {
		case ok && leftIsProduct && covers(leftTables, tables):
			left = append(left, predicate)
		case ok && rightIsProduct && covers(rightTables, tables):
			right = append(right, predicate)
		default:
			here = append(here, predicate)
		}
	}

	var leftPlan, rightPlan PlanNode
	if leftProduct, ok := product.Left.(*ProductNode); ok {
		leftPlan = pushDown(leftProduct, left)
	} else {
		leftPlan = rewriteJoins(product.Left)
	}
	if rightProduct, ok := product.Right.(*ProductNode); ok {
		rightPlan = pushDown(rightProduct, right)
	} else {
		rightPlan = rewriteJoins(product.Right)
	}

	if len(here) == 0 {
		return &ProductNode{Left: leftPlan, Right: rightPlan}
	}
	return &JoinNode{
		Condition: conjoin(here),
		Left:      leftPlan,
		Right:     rightPlan,
	}
}

func conjuncts(anExpr Expr, out []Expr) []Expr {
	if e, ok := anExpr.(BinaryExpr); ok && e.Op == And {
		out = conjuncts(e.Left, out)
		return conjuncts(e.Right, out)
	}
	return append(out, anExpr)
}

func conjoin(predicates []Expr) Expr {
	result := predicates[0]
	for _, predicate := range predicates[1:] {
		result = BinaryExpr{Op: And, Left: result, Right: predicate}
	}
	return result
}

func tablesOf(plan PlanNode) map[string]struct{} {
	tables := make(map[string]struct{})
	var walk func(PlanNode)
	walk = func(aNode PlanNode) {
		if aTable, ok := aNode.(*TableNode); ok {
			tables[aTable.Table] = struct{}{}
		}
		for _, aChild := range aNode.Children() {
			walk(aChild)
		}
	}
	walk(plan)
	return tables
}

// referencedTables is false when an attribute is unqualified or there is no
// attribute at all, such a conjunct stays where it is.
func referencedTables(anExpr Expr) (map[string]struct{}, bool) {
	var (
		tables = make(map[string]struct{})
		ok     = true
	)
	_ = Walk(anExpr, func(e Expr) error {
		if ref, isRef := e.(AttributeRef); isRef {
			if ref.Table == "" {
				ok = false
			}
			tables[ref.Table] = struct{}{}
		}
		return nil
	})
	return tables, ok && len(tables) > 0
}

func covers(tables, subset map[string]struct{}) bool {
	for table := range subset {
		if _, ok := tables[table]; !ok {
			return false
		}
	}
	return true
}

// Physical picks the algorithm of every JOIN and GROUP node that has none.
func (o *Optimizer) Physical(plan PlanNode) {
	switch n := plan.(type) {
	case *JoinNode:
		if n.Impl == 0 {
			n.Impl = o.opts.Join
		}
	case *GroupNode:
		if n.Impl == 0 {
			n.Impl = o.opts.Group
		}
	}
	for _, aChild := range plan.Children() {
		o.Physical(aChild)
	}
}
