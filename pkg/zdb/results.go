package zdb

// Results is the accumulator handlers write into. It holds nothing, a scalar, a single row
// (map[string]any) or a sequence of rows ([]map[string]any); which one depends on the handler
// that ran last.
type Results struct {
	value any
}

// Get returns the accumulated value, nil when empty.
func (r *Results) Get() any {
	return r.value
}

// Set overwrites the accumulator with v.
func (r *Results) Set(v any) {
	r.value = v
}

// Append adds row to the sequence of rows. A scalar or single row held before is replaced by a
// new sequence.
func (r *Results) Append(row map[string]any) {
	rows, _ := r.value.([]map[string]any)
	r.value = append(rows, row)
}

// Clear resets the accumulator to empty.
func (r *Results) Clear() {
	r.value = nil
}

// IsEmpty reports whether nothing has been accumulated.
func (r *Results) IsEmpty() bool {
	return r.value == nil
}

// Rows returns the accumulator as a sequence of rows. A single row is returned as a one-element
// sequence; anything else as nil.
func (r *Results) Rows() []map[string]any {
	switch v := r.value.(type) {
	case []map[string]any:
		return v
	case map[string]any:
		return []map[string]any{v}
	default:
		return nil
	}
}

// Row returns the accumulator when it holds a single row, or the first row of a sequence.
func (r *Results) Row() map[string]any {
	switch v := r.value.(type) {
	case map[string]any:
		return v
	case []map[string]any:
		if len(v) > 0 {
			return v[0]
		}
	}

	return nil
}
