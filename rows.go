package minirel

import (
	"database/sql/driver"
	"fmt"
	"io"
	"time"

	"github.com/RichardKnop/minirel/internal/minirel"
	"github.com/RichardKnop/minirel/internal/record"
)

// Rows iterates a fully materialized result.
type Rows struct {
	columns record.Descriptor
	rows    []record.Record
	next    int
}

func newRows(result minirel.Result) *Rows {
	return &Rows{
		columns: result.Columns,
		rows:    result.Rows,
	}
}

// Columns returns the names of the columns.
func (r *Rows) Columns() []string {
	return r.columns.Names()
}

// Close closes the rows iterator.
func (r *Rows) Close() error {
	r.rows = nil
	return nil
}

// Next is called to populate the next row of data into
// the provided slice. The provided slice will be the same
// size as the Columns() are wide.
//
// Next should return io.EOF when there are no more rows.
func (r *Rows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}

	aRow := r.rows[r.next]
	r.next++
	if len(aRow) != len(dest) {
		return fmt.Errorf("expected %d values, got %d", len(dest), len(aRow))
	}

	for i := range dest {
		if r.columns.Fields[i].Type == record.Datetime {
			if seconds, ok := aRow[i].(float64); ok {
				dest[i] = time.Unix(int64(seconds), 0).UTC()
				continue
			}
		}
		dest[i] = aRow[i]
	}

	return nil
}
