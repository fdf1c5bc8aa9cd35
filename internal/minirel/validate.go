package minirel

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/record"
)

var (
	ErrTableNotFound        = errors.New("table does not exist")
	ErrTableExists          = errors.New("table already exists")
	ErrDuplicateAlias       = errors.New("duplicate table alias")
	ErrDuplicateTableName   = errors.New("table listed more than once")
	ErrDuplicateColumn      = errors.New("duplicate column name")
	ErrAttributeNotFound    = errors.New("attribute does not exist")
	ErrAmbiguousAttribute   = errors.New("ambiguous attribute")
	ErrAggregatesNotAllowed = errors.New("aggregates are not allowed in WHERE")
	ErrNotInGroupBy         = errors.New("attribute must appear in GROUP BY")
	ErrTableNotInFrom       = errors.New("table is not in FROM clause")
	ErrInvalidAggregate     = errors.New("invalid aggregate")
)

// scope holds the tables a statement can reference.
type scope struct {
	tables     []string
	qualifiers map[string]string
	schemas    map[string]record.Descriptor
}

// resolved is an attribute reference bound to the table that owns it.
type resolved struct {
	ref   AttributeRef
	table string
	field record.Field
}

func (r resolved) same(other resolved) bool {
	return r.table == other.table && r.field.Name == other.field.Name
}

// Validator checks statements against the schemas stored in the catalog.
type Validator struct {
	catalog Catalog
	logger  *zap.Logger
}

func NewValidator(logger *zap.Logger, catalog Catalog) *Validator {
	return &Validator{
		catalog: catalog,
		logger:  logger,
	}
}

// ValidateSelect checks a SELECT and returns a copy with table aliases
// replaced by real table names. Checks run in clause order and stop at the
// first failure.
func (v *Validator) ValidateSelect(ctx context.Context, stmt Statement) (Statement, error) {
	stmt = stmt.Clone()

	aScope, err := v.fromClause(ctx, stmt.From)
	if err != nil {
		return Statement{}, err
	}

	// WHERE
	if err := Walk(stmt.Where, func(anExpr Expr) error {
		if _, ok := anExpr.(AggregateExpr); ok {
			return fmt.Errorf("%w: %s", ErrAggregatesNotAllowed, anExpr)
		}
		return nil
	}); err != nil {
		return Statement{}, err
	}
	stmt.Where, err = aScope.rewrite(stmt.Where, nil)
	if err != nil {
		return Statement{}, err
	}

	// GROUP BY and HAVING
	var groupBy []resolved
	for i, anAttribute := range stmt.GroupBy {
		aResolved, err := aScope.resolve(anAttribute)
		if err != nil {
			return Statement{}, err
		}
		groupBy = append(groupBy, aResolved)
		stmt.GroupBy[i] = aResolved.ref
	}
	grouped := stmt.IsGrouped()
	var inGroupBy func(resolved) error
	if grouped {
		inGroupBy = func(aResolved resolved) error {
			if !slices.ContainsFunc(groupBy, aResolved.same) {
				return fmt.Errorf("%w: %s", ErrNotInGroupBy, aResolved.ref)
			}
			return nil
		}
	}
	if err := aScope.checkAggregates(stmt.Having); err != nil {
		return Statement{}, err
	}
	stmt.Having, err = aScope.rewrite(stmt.Having, inGroupBy)
	if err != nil {
		return Statement{}, err
	}

	// ORDER BY
	for i, anOrder := range stmt.OrderBy {
		aResolved, err := aScope.resolve(anOrder.Attribute)
		if err != nil {
			return Statement{}, err
		}
		if inGroupBy != nil {
			if err := inGroupBy(aResolved); err != nil {
				return Statement{}, err
			}
		}
		stmt.OrderBy[i].Attribute = aResolved.ref
	}

	// SELECT list
	for i, anItem := range stmt.Items {
		switch anItem.Kind {
		case StarItem:
			if len(stmt.Items) > 1 {
				return Statement{}, fmt.Errorf("%w: * must be the only select item", ErrAttributeNotFound)
			}
		case AttributeItem, TableAttributeItem:
			aResolved, err := aScope.resolve(anItem.Attribute)
			if err != nil {
				return Statement{}, err
			}
			if inGroupBy != nil {
				if err := inGroupBy(aResolved); err != nil {
					return Statement{}, err
				}
			}
			stmt.Items[i].Attribute = aResolved.ref
		case AggregateItem:
			if err := aScope.checkAggregates(anItem.Aggregate); err != nil {
				return Statement{}, err
			}
			rewritten, err := aScope.rewrite(anItem.Aggregate, nil)
			if err != nil {
				return Statement{}, err
			}
			stmt.Items[i].Aggregate = rewritten.(AggregateExpr)
		}
	}

	v.logger.Sugar().With("statement", stmt.String()).Debug("validated statement")

	return stmt, nil
}

// ValidateDML checks DELETE and UPDATE against the schema of their table.
func (v *Validator) ValidateDML(ctx context.Context, stmt Statement) (Statement, error) {
	stmt = stmt.Clone()

	aScope, err := v.fromClause(ctx, []TableRef{{Name: stmt.TableName}})
	if err != nil {
		return Statement{}, err
	}

	if err := Walk(stmt.Where, func(anExpr Expr) error {
		if _, ok := anExpr.(AggregateExpr); ok {
			return fmt.Errorf("%w: %s", ErrAggregatesNotAllowed, anExpr)
		}
		return nil
	}); err != nil {
		return Statement{}, err
	}
	stmt.Where, err = aScope.rewrite(stmt.Where, nil)
	if err != nil {
		return Statement{}, err
	}

	if stmt.Kind != Update {
		return stmt, nil
	}

	target, err := aScope.resolve(Attr(stmt.SetAttribute).Attribute)
	if err != nil {
		return Statement{}, err
	}
	stmt.SetAttribute = target.field.Name
	if err := Walk(stmt.SetExpr, func(anExpr Expr) error {
		if _, ok := anExpr.(AggregateExpr); ok {
			return fmt.Errorf("%w: %s", ErrAggregatesNotAllowed, anExpr)
		}
		return nil
	}); err != nil {
		return Statement{}, err
	}
	stmt.SetExpr, err = aScope.rewrite(stmt.SetExpr, nil)
	if err != nil {
		return Statement{}, err
	}

	return stmt, nil
}

func (v *Validator) fromClause(ctx context.Context, from []TableRef) (scope, error) {
	aScope := scope{
		qualifiers: make(map[string]string, len(from)),
		schemas:    make(map[string]record.Descriptor, len(from)),
	}

	for _, aRef := range from {
		if !v.catalog.Exists(ctx, aRef.Name) {
			return scope{}, fmt.Errorf("%w: %s", ErrTableNotFound, aRef.Name)
		}
		if _, ok := aScope.schemas[aRef.Name]; ok {
			return scope{}, fmt.Errorf("%w: %s", ErrDuplicateTableName, aRef.Name)
		}
		qualifier := aRef.Qualifier()
		if _, ok := aScope.qualifiers[qualifier]; ok {
			if aRef.Alias != "" {
				return scope{}, fmt.Errorf("%w: %s", ErrDuplicateAlias, aRef.Alias)
			}
			return scope{}, fmt.Errorf("%w: %s", ErrDuplicateTableName, aRef.Name)
		}

		fileID, err := v.catalog.GetFileID(ctx, aRef.Name)
		if err != nil {
			return scope{}, err
		}
		desc, err := v.catalog.GetRecordDescriptor(ctx, fileID)
		if err != nil {
			return scope{}, err
		}

		aScope.tables = append(aScope.tables, aRef.Name)
		aScope.qualifiers[qualifier] = aRef.Name
		aScope.schemas[aRef.Name] = desc
	}

	// An alias must not shadow another table of the FROM clause.
	for _, aRef := range from {
		if aRef.Alias == "" || aRef.Alias == aRef.Name {
			continue
		}
		if _, ok := aScope.schemas[aRef.Alias]; ok {
			return scope{}, fmt.Errorf("%w: %s", ErrDuplicateAlias, aRef.Alias)
		}
	}

	return aScope, nil
}

// resolve binds an attribute to exactly one table of the scope. Qualified
// references come back qualified with the real table name, unqualified ones
// are left as written.
func (s scope) resolve(ref AttributeRef) (resolved, error) {
	if ref.Table != "" {
		table, ok := s.qualifiers[ref.Table]
		if !ok {
			return resolved{}, fmt.Errorf("%w: %s", ErrTableNotInFrom, ref.Table)
		}
		aField, ok := fieldByName(s.schemas[table], ref.Name)
		if !ok {
			return resolved{}, fmt.Errorf("%w: %s", ErrAttributeNotFound, ref)
		}
		return resolved{
			ref:   AttributeRef{Table: table, Name: ref.Name},
			table: table,
			field: aField,
		}, nil
	}

	var found []resolved
	for _, table := range s.tables {
		if aField, ok := fieldByName(s.schemas[table], ref.Name); ok {
			found = append(found, resolved{ref: ref, table: table, field: aField})
		}
	}
	switch len(found) {
	case 0:
		return resolved{}, fmt.Errorf("%w: %s", ErrAttributeNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return resolved{}, fmt.Errorf("%w: %s", ErrAmbiguousAttribute, ref)
	}
}

// rewrite resolves every attribute of the expression, check is applied to
// attributes outside of aggregates.
func (s scope) rewrite(anExpr Expr, check func(resolved) error) (Expr, error) {
	rewritten, err := RewriteAttributes(anExpr, func(ref AttributeRef) (AttributeRef, error) {
		aResolved, err := s.resolve(ref)
		if err != nil {
			return AttributeRef{}, err
		}
		return aResolved.ref, nil
	})
	if err != nil || check == nil {
		return rewritten, err
	}

	err = walkOutsideAggregates(anExpr, func(ref AttributeRef) error {
		aResolved, err := s.resolve(ref)
		if err != nil {
			return err
		}
		return check(aResolved)
	})
	return rewritten, err
}

// checkAggregates validates the operand of every aggregate in the expression.
func (s scope) checkAggregates(anExpr Expr) error {
	return Walk(anExpr, func(anExpr Expr) error {
		anAggregate, ok := anExpr.(AggregateExpr)
		if !ok {
			return nil
		}
		if anAggregate.Arg == nil {
			if anAggregate.Func != Count {
				return fmt.Errorf("%w: %s", ErrInvalidAggregate, anAggregate)
			}
			return nil
		}
		aResolved, err := s.resolve(*anAggregate.Arg)
		if err != nil {
			return err
		}
		if (anAggregate.Func == Sum || anAggregate.Func == Avg) && !aResolved.field.Type.IsNumeric() {
			return fmt.Errorf("%w: %s over %s field", ErrInvalidAggregate, anAggregate, aResolved.field.Type)
		}
		return nil
	})
}

func walkOutsideAggregates(anExpr Expr, fn func(AttributeRef) error) error {
	switch e := anExpr.(type) {
	case BinaryExpr:
		if err := walkOutsideAggregates(e.Left, fn); err != nil {
			return err
		}
		return walkOutsideAggregates(e.Right, fn)
	case NotExpr:
		return walkOutsideAggregates(e.Expr, fn)
	case AttributeRef:
		return fn(e)
	default:
		return nil
	}
}

func fieldByName(desc record.Descriptor, name string) (record.Field, bool) {
	for _, aField := range desc.Fields {
		if aField.Name == name {
			return aField, true
		}
	}
	return record.Field{}, false
}
