package zdb

import (
	"fmt"
	"sort"

	"golang.org/x/text/encoding/charmap"
)

// RowHandler receives every fetched row of a query and records what it needs in results.
type RowHandler interface {
	Handle(results *Results, row Row)
}

// HandlerFunc adapts an ordinary function to RowHandler.
type HandlerFunc func(results *Results, row Row)

func (f HandlerFunc) Handle(results *Results, row Row) {
	f(results, row)
}

// Builtin enumerates the handlers every registry starts with.
type Builtin int

const (
	// FetchRows appends each row to a sequence.
	FetchRows Builtin = iota
	// FetchRow keeps the last row.
	FetchRow
	// FetchField keeps the first column of the last row.
	FetchField
	// FetchUTF8Rows is FetchRows with every string value re-encoded to UTF-8.
	FetchUTF8Rows
	// FetchUTF8Row is FetchRow with every string value re-encoded to UTF-8.
	FetchUTF8Row
	// FetchUTF8Field is FetchField with the value re-encoded to UTF-8.
	FetchUTF8Field
)

//nolint:gochecknoglobals // registration order of the builtins.
var builtins = []Builtin{FetchRows, FetchRow, FetchField, FetchUTF8Rows, FetchUTF8Row, FetchUTF8Field}

func (b Builtin) String() string {
	switch b {
	case FetchRows:
		return "ROWS"
	case FetchRow:
		return "ROW"
	case FetchField:
		return "FIELD"
	case FetchUTF8Rows:
		return "UTF8_ROWS"
	case FetchUTF8Row:
		return "UTF8_ROW"
	case FetchUTF8Field:
		return "UTF8_FIELD"
	default:
		return fmt.Sprintf("Builtin(%d)", int(b))
	}
}

// Names returns the registry keys of the handler: FETCH_<X>_HANDLER, <X>_HANDLER and <X>.
func (b Builtin) Names() []string {
	return []string{"FETCH_" + b.String() + "_HANDLER", b.String() + "_HANDLER", b.String()}
}

func (b Builtin) encoder() func(any) any {
	switch b {
	case FetchUTF8Rows, FetchUTF8Row, FetchUTF8Field:
		return toUTF8
	default:
		return nil
	}
}

func (b Builtin) Handle(results *Results, row Row) {
	encode := b.encoder()

	switch b {
	case FetchRows, FetchUTF8Rows:
		results.Append(row.mapValues(encode))
	case FetchRow, FetchUTF8Row:
		results.Set(row.mapValues(encode))
	case FetchField, FetchUTF8Field:
		if row.Len() == 0 {
			return
		}

		v := row.Value(0)
		if encode != nil {
			v = encode(v)
		}

		results.Set(v)
	}
}

// toUTF8 reads a string's bytes as ISO-8859-1 and returns them transcoded to UTF-8. []byte values
// are treated the same way and come back as string; anything else is returned unchanged.
func toUTF8(v any) any {
	var raw string

	switch t := v.(type) {
	case string:
		raw = t
	case []byte:
		raw = string(t)
	default:
		return v
	}

	s, err := charmap.ISO8859_1.NewDecoder().String(raw)
	if err != nil {
		return raw
	}

	return s
}

// Registry maps handler names to handlers.
type Registry struct {
	handlers map[string]RowHandler
}

// NewRegistry returns a registry holding every Builtin under each of its names.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]RowHandler, len(builtins)*3)}

	for _, b := range builtins {
		for _, name := range b.Names() {
			r.Register(name, b)
		}
	}

	return r
}

// Register inserts or replaces the handler stored under name. Other names are not affected.
func (r *Registry) Register(name string, h RowHandler) {
	r.handlers[name] = h
}

// Lookup returns the handler stored under name.
func (r *Registry) Lookup(name string) (RowHandler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}

	return h, nil
}

// Names lists the registered names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
