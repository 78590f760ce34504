// Package table turns flattened pitch events into column/row tables that
// sinks can write without knowing the record type.
package table

import (
	"errors"
	"slices"

	"github.com/fortuna/diamond/internal/feed"
)

// ErrNoData is returned for an empty record set. An empty game is reported
// this way rather than as a table with zero rows.
var ErrNoData = errors.New("no data")

// Table holds rows sharing one column set. Missing values are nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New builds a table from pitch events.
func New(events []feed.PitchEvent) (*Table, error) {
	if len(events) == 0 {
		return nil, ErrNoData
	}

	t := &Table{
		Columns: slices.Clone(feed.Columns),
		Rows:    make([][]any, 0, len(events)),
	}
	for i := range events {
		t.Rows = append(t.Rows, events[i].Values())
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Append concatenates other onto t. Both tables must share columns.
func (t *Table) Append(other *Table) error {
	if other == nil {
		return nil
	}
	if len(t.Columns) != len(other.Columns) {
		return errors.New("column sets differ")
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return errors.New("column sets differ")
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
	return nil
}

// Column returns the values of one column, or false when it does not exist.
func (t *Table) Column(name string) ([]any, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// Records returns each row as a column-name keyed map.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	return out
}
