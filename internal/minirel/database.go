package minirel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/heap"
	"github.com/RichardKnop/minirel/internal/record"
	"github.com/RichardKnop/minirel/internal/storage"
	"github.com/RichardKnop/minirel/pkg/lrucache"
)

const DefaultMaxCachedStatements = 1000

var errUnrecognizedStatementType = errors.New("unrecognised statement type")

// Result is the outcome of one statement. Message carries conditions that
// are reported to the user without failing the statement.
type Result struct {
	Columns      record.Descriptor
	Rows         []record.Record
	RowsAffected int
	Message      string
}

// Database drives statements through validation, planning and execution.
type Database struct {
	parser    Parser
	catalog   Catalog
	validator *Validator
	optimizer *Optimizer
	executor  *Executor
	stmtCache LRUCache[string]
	mu        sync.Mutex
	logger    *zap.Logger
}

type DatabaseOption func(*Database)

// WithMaxCachedStatements sizes the parsed statement cache, zero disables it.
func WithMaxCachedStatements(maxStatements int) DatabaseOption {
	return func(d *Database) {
		d.stmtCache = lrucache.New[string](maxStatements)
	}
}

func WithOptimizer(opts OptimizerOptions) DatabaseOption {
	return func(d *Database) {
		d.optimizer = NewOptimizer(d.logger, opts)
	}
}

func NewDatabase(logger *zap.Logger, aParser Parser, aCatalog Catalog, ops Operators, opts ...DatabaseOption) *Database {
	d := &Database{
		parser:    aParser,
		catalog:   aCatalog,
		validator: NewValidator(logger, aCatalog),
		optimizer: NewOptimizer(logger, DefaultOptimizerOptions()),
		executor:  NewExecutor(logger, aCatalog, ops),
		stmtCache: lrucache.New[string](DefaultMaxCachedStatements),
		logger:    logger,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// PrepareStatements parses the input, parsed statements are cached by their
// source text.
func (d *Database) PrepareStatements(ctx context.Context, sql string) ([]Statement, error) {
	if cached, ok := d.stmtCache.GetAndPromote(sql); ok {
		return cached.([]Statement), nil
	}

	statements, err := d.parser.Parse(ctx, sql)
	if err != nil {
		return nil, err
	}
	d.stmtCache.Put(sql, statements, false)

	return statements, nil
}

// Run executes every statement of a line and writes results and messages to
// w. Failures are reported and never abort the caller.
func (d *Database) Run(ctx context.Context, line string, w io.Writer) {
	statements, err := d.PrepareStatements(ctx, line)
	if err != nil {
		d.logger.Sugar().With("line", line, "error", err).Warn("failed to parse statement")
		fmt.Fprintln(w, "Failed to parse statement.")
		return
	}

	for _, stmt := range statements {
		aResult, err := d.Exec(ctx, stmt)
		if err != nil {
			d.logger.Sugar().With("statement", stmt.String(), "error", err).Warn("statement failed")
			fmt.Fprintf(w, "Error running query: %v\n", err)
			continue
		}
		if aResult.Message != "" {
			fmt.Fprintln(w, aResult.Message)
			continue
		}
		if stmt.Kind == Select {
			if err := Render(w, aResult); err != nil {
				d.logger.Sugar().With("error", err).Error("failed to render result")
			}
		}
	}
}

// Tables lists user tables.
func (d *Database) Tables(ctx context.Context) ([]string, error) {
	infos, err := d.catalog.Tables(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names, nil
}

// Exec runs a single statement to completion.
func (d *Database) Exec(ctx context.Context, stmt Statement) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch stmt.Kind {
	case CreateTable:
		return d.createTable(ctx, stmt)
	case DropTable:
		return d.dropTable(ctx, stmt)
	case CreateIndex, DropIndex:
		d.logger.Sugar().With("index", stmt.IndexName).Debug("indexes are not supported, ignoring statement")
		return Result{}, nil
	case Insert:
		return d.insert(ctx, stmt)
	case Delete:
		return d.delete(ctx, stmt)
	case Update:
		return d.update(ctx, stmt)
	case Select:
		return d.query(ctx, stmt)
	default:
		return Result{}, errUnrecognizedStatementType
	}
}

func (d *Database) createTable(ctx context.Context, stmt Statement) (Result, error) {
	if d.catalog.Exists(ctx, stmt.TableName) {
		return Result{Message: fmt.Sprintf("Table %s already exists.", stmt.TableName)}, nil
	}

	fields := make([]record.Field, 0, len(stmt.Columns))
	seen := make(map[string]struct{}, len(stmt.Columns))
	for _, aColumn := range stmt.Columns {
		if _, ok := seen[aColumn.Name]; ok {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateColumn, aColumn.Name)
		}
		seen[aColumn.Name] = struct{}{}
		fields = append(fields, aColumn.Field())
	}

	if _, err := d.catalog.CreateHeapFile(ctx, stmt.TableName, record.NewDescriptor(fields...), stmt.Volatile); err != nil {
		return Result{}, err
	}

	d.logger.Sugar().With("table", stmt.TableName, "volatile", stmt.Volatile).Info("created table")

	return Result{}, nil
}

func (d *Database) dropTable(ctx context.Context, stmt Statement) (Result, error) {
	if !d.catalog.Exists(ctx, stmt.TableName) {
		return Result{Message: fmt.Sprintf("File named %s does not exist.", stmt.TableName)}, nil
	}

	fileID, err := d.catalog.GetFileID(ctx, stmt.TableName)
	if err != nil {
		return Result{}, err
	}
	if err := d.catalog.DeleteHeapFile(ctx, fileID); err != nil {
		return Result{}, err
	}

	d.logger.Sugar().With("table", stmt.TableName).Info("dropped table")

	return Result{}, nil
}

func (d *Database) insert(ctx context.Context, stmt Statement) (Result, error) {
	if !d.catalog.Exists(ctx, stmt.TableName) {
		return Result{Message: fmt.Sprintf("Table does not exist: %s", stmt.TableName)}, nil
	}

	fileID, err := d.catalog.GetFileID(ctx, stmt.TableName)
	if err != nil {
		return Result{}, err
	}
	desc, err := d.catalog.GetRecordDescriptor(ctx, fileID)
	if err != nil {
		return Result{}, err
	}
	if len(stmt.Values) != desc.NumFields() {
		return Result{Message: fmt.Sprintf("Insert statement has %d values, expected %d.", len(stmt.Values), desc.NumFields())}, nil
	}

	data, err := record.Encode(stmt.Values, desc)
	if err != nil {
		return Result{}, err
	}
	if _, err := d.catalog.InsertRecord(ctx, fileID, data); err != nil {
		return Result{}, err
	}

	return Result{RowsAffected: 1}, nil
}

func (d *Database) delete(ctx context.Context, stmt Statement) (Result, error) {
	stmt, err := d.validator.ValidateDML(ctx, stmt)
	if err != nil {
		return Result{}, err
	}

	fileID, desc, err := d.table(ctx, stmt.TableName)
	if err != nil {
		return Result{}, err
	}

	var matched []heap.RecordID
	if err := d.catalog.Scan(ctx, fileID, func(rid heap.RecordID, data []byte) error {
		values, err := record.Decode(data, desc)
		if err != nil {
			return err
		}
		ok, err := CheckCondition(stmt.Where, Tuple{Descriptor: desc, Values: values})
		if err != nil || !ok {
			return err
		}
		matched = append(matched, rid)
		return nil
	}); err != nil {
		return Result{}, err
	}

	for _, rid := range matched {
		if err := d.catalog.DeleteRecord(ctx, fileID, rid); err != nil {
			return Result{}, err
		}
	}

	return Result{RowsAffected: len(matched)}, nil
}

func (d *Database) update(ctx context.Context, stmt Statement) (Result, error) {
	stmt, err := d.validator.ValidateDML(ctx, stmt)
	if err != nil {
		return Result{}, err
	}

	fileID, desc, err := d.table(ctx, stmt.TableName)
	if err != nil {
		return Result{}, err
	}
	target, err := desc.Resolve(stmt.SetAttribute)
	if err != nil {
		return Result{}, err
	}

	updated := 0
	if err := d.catalog.Scan(ctx, fileID, func(rid heap.RecordID, data []byte) error {
		values, err := record.Decode(data, desc)
		if err != nil {
			return err
		}
		aTuple := Tuple{Descriptor: desc, Values: values}
		ok, err := CheckCondition(stmt.Where, aTuple)
		if err != nil || !ok {
			return err
		}
		value, err := Eval(stmt.SetExpr, aTuple)
		if err != nil {
			return err
		}
		values[target] = value
		newData, err := record.Encode(values, desc)
		if err != nil {
			return err
		}
		if err := d.catalog.UpdateRecord(ctx, fileID, rid, newData); err != nil {
			return err
		}
		updated++
		return nil
	}); err != nil {
		return Result{}, err
	}

	return Result{RowsAffected: updated}, nil
}

// query validates, plans and executes a SELECT. The result relation is read
// into memory and deleted unless it is a base table.
func (d *Database) query(ctx context.Context, stmt Statement) (Result, error) {
	stmt, err := d.validator.ValidateSelect(ctx, stmt)
	if err != nil {
		return Result{}, err
	}

	plan, err := BuildPlan(stmt)
	if err != nil {
		return Result{}, err
	}
	plan = d.optimizer.Optimize(plan)

	fileID, err := d.executor.Execute(ctx, plan)
	if err != nil {
		return Result{}, err
	}
	defer d.executor.Release(ctx, plan, fileID)

	desc, err := d.catalog.GetRecordDescriptor(ctx, fileID)
	if err != nil {
		return Result{}, err
	}
	aResult := Result{Columns: desc}
	if err := d.catalog.Scan(ctx, fileID, func(_ heap.RecordID, data []byte) error {
		values, err := record.Decode(data, desc)
		if err != nil {
			return err
		}
		aResult.Rows = append(aResult.Rows, values)
		return nil
	}); err != nil {
		return Result{}, err
	}

	return aResult, nil
}

func (d *Database) table(ctx context.Context, name string) (storage.FileID, record.Descriptor, error) {
	fileID, err := d.catalog.GetFileID(ctx, name)
	if err != nil {
		return 0, record.Descriptor{}, err
	}
	desc, err := d.catalog.GetRecordDescriptor(ctx, fileID)
	if err != nil {
		return 0, record.Descriptor{}, err
	}
	return fileID, desc, nil
}
