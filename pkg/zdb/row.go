package zdb

import "strconv"

// Row is the view of the current row handed to a RowHandler.
//
// The view is borrowed: its values are overwritten by the next fetch, so a handler must copy
// whatever it keeps (Map and Values return copies) and must not retain the Row itself.
type Row struct {
	columns []string
	values  []any
}

// NewRow builds a Row from parallel column and value slices. It is meant for handler tests and
// for callers feeding rows to handlers outside a query.
func NewRow(columns []string, values []any) Row {
	n := min(len(columns), len(values))

	return Row{columns: columns[:n], values: values[:n]}
}

// Len is the number of columns in the row.
func (r Row) Len() int {
	return len(r.columns)
}

// Columns returns the resolved column names in result order.
func (r Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Value returns the value of the i-th column.
func (r Row) Value(i int) any {
	return r.values[i]
}

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.columns {
		if c == name {
			return r.values[i], true
		}
	}

	return nil, false
}

// Values returns a copy of the row's values in column order.
func (r Row) Values() []any {
	return append([]any(nil), r.values...)
}

// Map copies the row into a column to value mapping.
func (r Row) Map() map[string]any {
	return r.mapValues(nil)
}

func (r Row) mapValues(convert func(any) any) map[string]any {
	m := make(map[string]any, len(r.columns))

	for i, c := range r.columns {
		v := r.values[i]
		if convert != nil {
			v = convert(v)
		}

		m[c] = v
	}

	return m
}

func (r Row) clone() Row {
	return Row{columns: r.columns, values: r.Values()}
}

// DedupColumns returns names with every repeated name suffixed by the smallest positive integer
// that makes it unique among the names assigned so far. First occurrences keep their name.
func DedupColumns(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		candidate := name

		for count := 1; ; count++ {
			if _, taken := seen[candidate]; !taken {
				break
			}

			candidate = name + strconv.Itoa(count)
		}

		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}

	return out
}
