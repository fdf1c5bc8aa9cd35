package minirel

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/RichardKnop/minirel/internal/config"
	"github.com/RichardKnop/minirel/internal/engine"
	"github.com/RichardKnop/minirel/internal/minirel"
	"github.com/RichardKnop/minirel/internal/pkg/logging"
)

const (
	driverName = "minirel"
)

var (
	ErrTransactionsNotSupported = errors.New("transactions are not supported")
	errArgumentsNotSupported    = errors.New("query arguments are not supported")
)

func init() {
	sql.Register(driverName, &Driver{})
}

// Driver implements the database/sql/driver.Driver interface.
//
// Every connection to the same store path shares one engine, the store is
// unmounted when the last of them closes.
type Driver struct {
	mu      sync.Mutex
	engines map[string]*sharedEngine
}

type sharedEngine struct {
	*engine.Engine
	conns int
}

// Open returns a new connection to the database.
// The name is a connection string, see config.ParseConnectionString.
func (d *Driver) Open(name string) (driver.Conn, error) {
	cfg := config.Default()
	cfg.LogLevel = "warn" // warn by default for driver
	cfg.LogFormat = logging.FormatJSON
	if err := cfg.ApplyConnectionString(name); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engines == nil {
		d.engines = make(map[string]*sharedEngine)
	}

	// Check if database is already open
	shared, exists := d.engines[cfg.StorePath]
	if !exists {
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}

		anEngine, err := engine.Open(cfg, logger, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		shared = &sharedEngine{Engine: anEngine}
		d.engines[cfg.StorePath] = shared
	}
	shared.conns++

	return &Conn{
		driver: d,
		path:   cfg.StorePath,
		db:     shared.Database,
	}, nil
}

func (d *Driver) release(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	shared, ok := d.engines[path]
	if !ok {
		return nil
	}
	shared.conns--
	if shared.conns > 0 {
		return nil
	}
	delete(d.engines, path)
	return shared.Close(context.Background())
}

// Conn implements the database/sql/driver.Conn interface.
type Conn struct {
	driver *Driver
	path   string
	db     *minirel.Database
	closed bool
	mu     sync.Mutex
}

func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.db.Tables(ctx)
	return err
}

// Close releases the connection's share of the engine, the last connection
// flushes the buffer pools and unmounts the store.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.driver.release(c.path)
}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext returns a prepared statement, bound to this connection.
// context is for the preparation of the statement,
// it must not store the context within the statement itself.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	statements, err := c.db.PrepareStatements(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	if len(statements) == 0 {
		return nil, fmt.Errorf("no statements in query")
	}

	if len(statements) > 1 {
		return nil, fmt.Errorf("multiple statements not supported in prepared statements")
	}

	return &Stmt{
		conn:      c,
		statement: statements[0],
	}, nil
}

// Begin always fails, every statement runs on its own.
//
// Deprecated: Drivers should implement ConnBeginTx instead (or additionally).
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return nil, ErrTransactionsNotSupported
}

// ExecContext executes a query that doesn't return rows.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > 0 {
		return nil, errArgumentsNotSupported
	}

	statements, err := c.db.PrepareStatements(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	var totalRowsAffected int64

	for _, stmt := range statements {
		result, err := c.executeStatement(ctx, stmt)
		if err != nil {
			return nil, err
		}
		totalRowsAffected += int64(result.RowsAffected)
	}

	return Result{rowsAffected: totalRowsAffected}, nil
}

// QueryContext executes a query that may return rows.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) > 0 {
		return nil, errArgumentsNotSupported
	}

	statements, err := c.db.PrepareStatements(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	if len(statements) == 0 {
		return nil, fmt.Errorf("no statements in query")
	}

	if len(statements) > 1 {
		return nil, fmt.Errorf("multiple statements not supported")
	}

	result, err := c.executeStatement(ctx, statements[0])
	if err != nil {
		return nil, err
	}

	return newRows(result), nil
}

// executeStatement turns the conditions the shell only reports, like an
// existing table on CREATE TABLE, into errors.
func (c *Conn) executeStatement(ctx context.Context, stmt minirel.Statement) (minirel.Result, error) {
	result, err := c.db.Exec(ctx, stmt)
	if err != nil {
		return minirel.Result{}, err
	}
	if result.Message != "" {
		return minirel.Result{}, errors.New(result.Message)
	}
	return result, nil
}

// Ensure interfaces are implemented
var _ driver.Driver = (*Driver)(nil)
var _ driver.Conn = (*Conn)(nil)
var _ driver.Pinger = (*Conn)(nil)
var _ driver.ConnPrepareContext = (*Conn)(nil)
var _ driver.ConnBeginTx = (*Conn)(nil)
var _ driver.ExecerContext = (*Conn)(nil)
var _ driver.QueryerContext = (*Conn)(nil)
