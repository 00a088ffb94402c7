package zdb

// Options configures a single Query call. The zero value runs the query directly on the default
// connection with an automatically selected handler.
type Options struct {
	// Types is the parameter type signature, one character per parameter: i (integer),
	// d (double), s (string) or b (blob). Together with Params it selects prepared mode.
	Types string
	// Params are the positional bind values.
	Params []any
	// Results names the output columns, overriding the names reported by the driver. Nil means
	// unset; an empty non-nil slice delivers every row as an empty mapping.
	Results []string
	// HandlerName is looked up in the registry; it takes precedence over Handler.
	HandlerName string
	// Handler receives every row when HandlerName is empty.
	Handler RowHandler
	// Conn overrides the Database connection for this call only.
	Conn Conn
}

// Option mutates the Options of one Query call.
type Option func(*Options)

// WithOptions replaces the whole option set. Options given after it still apply on top.
func WithOptions(o Options) Option {
	return func(opts *Options) {
		*opts = o
	}
}

// Types sets the parameter type signature.
func Types(signature string) Option {
	return func(o *Options) {
		o.Types = signature
	}
}

// Params sets the bind values. A single []any argument is used as the whole parameter list.
func Params(values ...any) Option {
	return func(o *Options) {
		o.Params = values
	}
}

// ResultNames sets explicit output column names.
func ResultNames(names ...string) Option {
	return func(o *Options) {
		if names == nil {
			names = []string{}
		}

		o.Results = names
	}
}

// Handler sets the handler invoked for every row.
func Handler(h RowHandler) Option {
	return func(o *Options) {
		o.Handler = h
		o.HandlerName = ""
	}
}

// HandlerName selects a registered handler by name.
func HandlerName(name string) Option {
	return func(o *Options) {
		o.HandlerName = name
		o.Handler = nil
	}
}

// Connection runs the call on c instead of the Database connection.
func Connection(c Conn) Option {
	return func(o *Options) {
		o.Conn = c
	}
}

func buildOptions(opts []Option) Options {
	var o Options

	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	o.Params = normalizeParams(o.Params)

	return o
}

func normalizeParams(params []any) []any {
	if len(params) == 1 {
		if list, ok := params[0].([]any); ok {
			return list
		}
	}

	return params
}

func (o *Options) prepared() bool {
	return o.Types != "" && len(o.Params) > 0
}
