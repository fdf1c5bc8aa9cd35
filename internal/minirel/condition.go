package minirel

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/RichardKnop/minirel/internal/record"
)

var (
	errDivisionByZero  = errors.New("division by zero")
	errNotBoolean      = errors.New("condition does not evaluate to a boolean")
	errInvalidOperands = errors.New("invalid operands")
)

// Expr is a node of an immutable expression tree.
type Expr interface {
	String() string
	isExpr()
}

type Operator int

const (
	Or Operator = iota + 1
	And
	Eq
	Ne
	Lt
	Lte
	Gt
	Gte
	Add
	Sub
	Mul
	Div
)

func (o Operator) String() string {
	switch o {
	case Or:
		return "OR"
	case And:
		return "AND"
	case Eq:
		return "="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	default:
		return "?"
	}
}

func (o Operator) precedence() int {
	switch o {
	case Or:
		return 1
	case And:
		return 2
	case Eq, Ne, Lt, Lte, Gt, Gte:
		return 4
	case Add, Sub:
		return 5
	default:
		return 6
	}
}

func (o Operator) IsComparison() bool {
	return o.precedence() == 4
}

type BinaryExpr struct {
	Op    Operator
	Left  Expr
	Right Expr
}

func (BinaryExpr) isExpr() {}

func (e BinaryExpr) String() string {
	return e.operand(e.Left, false) + " " + e.Op.String() + " " + e.operand(e.Right, true)
}

func (e BinaryExpr) operand(anExpr Expr, right bool) string {
	child, ok := anExpr.(BinaryExpr)
	if !ok {
		return anExpr.String()
	}
	if child.Op.precedence() < e.Op.precedence() || (right && child.Op.precedence() == e.Op.precedence()) {
		return "(" + child.String() + ")"
	}
	return child.String()
}

type NotExpr struct {
	Expr Expr
}

func (NotExpr) isExpr() {}

func (e NotExpr) String() string {
	if _, ok := e.Expr.(BinaryExpr); ok {
		return "NOT (" + e.Expr.String() + ")"
	}
	return "NOT " + e.Expr.String()
}

// Literal holds an int64, float64, string or bool.
type Literal struct {
	Value any
}

func (Literal) isExpr() {}

func (e Literal) String() string {
	switch v := e.Value.(type) {
	case string:
		return "'" + v + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AttributeRef names an attribute, optionally qualified with a table name or alias.
type AttributeRef struct {
	Table string
	Name  string
}

func (AttributeRef) isExpr() {}

func (e AttributeRef) String() string {
	if e.Table != "" {
		return e.Table + "." + e.Name
	}
	return e.Name
}

type AggregateFunc int

const (
	Count AggregateFunc = iota + 1
	Sum
	Avg
	Min
	Max
)

func (f AggregateFunc) String() string {
	switch f {
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	default:
		return "UNKNOWN"
	}
}

// AggregateExpr is an aggregate call, a nil Arg stands for COUNT(*).
type AggregateExpr struct {
	Func AggregateFunc
	Arg  *AttributeRef
}

func (AggregateExpr) isExpr() {}

func (e AggregateExpr) String() string {
	if e.Arg == nil {
		return e.Func.String() + "(*)"
	}
	return e.Func.String() + "(" + e.Arg.String() + ")"
}

// Tuple is a decoded record together with its descriptor.
type Tuple struct {
	Descriptor record.Descriptor
	Values     record.Record
}

func (t Tuple) Value(name string) (any, error) {
	idx, err := t.Descriptor.Resolve(name)
	if err != nil {
		return nil, err
	}
	return t.Values[idx], nil
}

// Walk visits the expression tree in pre-order, a nil tree is not visited.
func Walk(anExpr Expr, fn func(Expr) error) error {
	if anExpr == nil {
		return nil
	}
	if err := fn(anExpr); err != nil {
		return err
	}
	switch e := anExpr.(type) {
	case BinaryExpr:
		if err := Walk(e.Left, fn); err != nil {
			return err
		}
		return Walk(e.Right, fn)
	case NotExpr:
		return Walk(e.Expr, fn)
	case AggregateExpr:
		if e.Arg != nil {
			return Walk(*e.Arg, fn)
		}
	}
	return nil
}

// RewriteAttributes returns a copy of the tree with every attribute
// reference, aggregate operands included, replaced by fn.
func RewriteAttributes(anExpr Expr, fn func(AttributeRef) (AttributeRef, error)) (Expr, error) {
	switch e := anExpr.(type) {
	case nil:
		return nil, nil
	case BinaryExpr:
		left, err := RewriteAttributes(e.Left, fn)
		if err != nil {
			return nil, err
		}
		right, err := RewriteAttributes(e.Right, fn)
		if err != nil {
			return nil, err
		}
		return BinaryExpr{Op: e.Op, Left: left, Right: right}, nil
	case NotExpr:
		inner, err := RewriteAttributes(e.Expr, fn)
		if err != nil {
			return nil, err
		}
		return NotExpr{Expr: inner}, nil
	case AttributeRef:
		return fn(e)
	case AggregateExpr:
		if e.Arg == nil {
			return e, nil
		}
		arg, err := fn(*e.Arg)
		if err != nil {
			return nil, err
		}
		return AggregateExpr{Func: e.Func, Arg: &arg}, nil
	default:
		return anExpr, nil
	}
}

// CheckCondition evaluates a condition against a tuple, a nil condition
// matches every tuple.
func CheckCondition(condition Expr, aTuple Tuple) (bool, error) {
	if condition == nil {
		return true, nil
	}
	value, err := Eval(condition, aTuple)
	if err != nil {
		return false, err
	}
	ok, isBool := value.(bool)
	if !isBool {
		return false, fmt.Errorf("%w: %s", errNotBoolean, condition)
	}
	return ok, nil
}

// Eval computes the value of an expression for a tuple. Aggregates resolve
// to the field of the same name produced by grouping.
func Eval(anExpr Expr, aTuple Tuple) (any, error) {
	switch e := anExpr.(type) {
	case Literal:
		return e.Value, nil
	case AttributeRef:
		return aTuple.Value(e.String())
	case AggregateExpr:
		return aTuple.Value(e.String())
	case NotExpr:
		ok, err := CheckCondition(e.Expr, aTuple)
		if err != nil {
			return nil, err
		}
		return !ok, nil
	case BinaryExpr:
		return evalBinary(e, aTuple)
	default:
		return nil, fmt.Errorf("unsupported expression %T", anExpr)
	}
}

func evalBinary(e BinaryExpr, aTuple Tuple) (any, error) {
	switch e.Op {
	case And, Or:
		left, err := CheckCondition(e.Left, aTuple)
		if err != nil {
			return nil, err
		}
		if e.Op == And && !left {
			return false, nil
		}
		if e.Op == Or && left {
			return true, nil
		}
		return CheckCondition(e.Right, aTuple)
	}

	left, err := Eval(e.Left, aTuple)
	if err != nil {
		return nil, err
	}
	right, err := Eval(e.Right, aTuple)
	if err != nil {
		return nil, err
	}

	if e.Op.IsComparison() {
		c, err := record.Compare(left, right)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case Eq:
			return c == 0, nil
		case Ne:
			return c != 0, nil
		case Lt:
			return c < 0, nil
		case Lte:
			return c <= 0, nil
		case Gt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}

	return arithmetic(e.Op, left, right)
}

func arithmetic(op Operator, left, right any) (any, error) {
	l, lok := left.(int64)
	r, rok := right.(int64)
	if lok && rok {
		switch op {
		case Add:
			return l + r, nil
		case Sub:
			return l - r, nil
		case Mul:
			return l * r, nil
		case Div:
			if r == 0 {
				return nil, errDivisionByZero
			}
			return l / r, nil
		}
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: %v %s %v", errInvalidOperands, left, op, right)
	}
	switch op {
	case Add:
		return lf + rf, nil
	case Sub:
		return lf - rf, nil
	case Mul:
		return lf * rf, nil
	case Div:
		if rf == 0 {
			return nil, errDivisionByZero
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("%w: operator %s", errInvalidOperands, op)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
