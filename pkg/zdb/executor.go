package zdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sllt/zdb/pkg/zdb/logging"
)

const (
	modeDirect   = "direct"
	modePrepared = "prepared"
)

// Query runs query and feeds every row of every result set to the resolved handler.
//
// The query is prepared and its parameters bound when both Types and Params are given; otherwise
// it is sent as is and Params are not used. Results and error state of the previous call are
// discarded first. The outcome is read with Success, GetError and GetResults.
func (d *Database) Query(ctx context.Context, query string, opts ...Option) *Database {
	return d.run(ctx, query, nil, opts)
}

// QueryStmt runs an already prepared statement. The statement stays open and owned by the caller.
func (d *Database) QueryStmt(ctx context.Context, stmt *sql.Stmt, opts ...Option) *Database {
	return d.run(ctx, fmt.Sprintf("stmt(%p)", stmt), stmt, opts)
}

func (d *Database) run(ctx context.Context, query string, stmt *sql.Stmt, opts []Option) *Database {
	o := buildOptions(opts)

	d.query = query
	d.results.Clear()
	d.err = nil

	mode := modeDirect
	if stmt != nil || o.prepared() {
		mode = modePrepared
	}

	id := uuid.NewString()

	ctx, span := d.tracer.Start(ctx, "zdb.Query", trace.WithAttributes(
		attribute.String("zdb.query.id", id),
		attribute.String("zdb.query.mode", mode),
		attribute.String("db.statement", query),
	))
	defer span.End()

	conn := o.Conn
	if conn == nil {
		conn = d.conn
	}

	handler, err := d.resolveHandler(&o)
	if err != nil {
		return d.abort(ctx, KindUnknownHandler, err)
	}

	var rows *sql.Rows

	if mode == modePrepared {
		if stmt == nil {
			if conn == nil {
				return d.abort(ctx, KindExecute, ErrNoConnection)
			}

			prepared, err := conn.PrepareContext(ctx, query)
			if err != nil {
				return d.abort(ctx, KindStatementPrepare, err)
			}

			defer prepared.Close()

			stmt = prepared
		}

		args, err := bindParams(o.Types, o.Params)
		if err != nil {
			return d.abort(ctx, KindExecute, err)
		}

		rows, err = queryStmt(ctx, conn, stmt, query, args)
		if err != nil {
			return d.abort(ctx, KindExecute, err)
		}
	} else {
		if conn == nil {
			return d.abort(ctx, KindExecute, ErrNoConnection)
		}

		rows, err = conn.QueryContext(ctx, query)
		if err != nil {
			return d.abort(ctx, KindExecute, err)
		}
	}

	defer rows.Close()

	sets, err := d.deliver(rows, o.Results, handler)
	if err != nil {
		return d.abort(ctx, KindExecute, err)
	}

	span.SetAttributes(attribute.Int("zdb.result_sets", sets))
	logging.NewContextLogger(ctx, d.logger).Debugf("query %s ran %s over %d result set(s)", id, mode, sets)

	return d
}

func queryStmt(ctx context.Context, conn Conn, stmt *sql.Stmt, query string, args []any) (*sql.Rows, error) {
	if q, ok := conn.(StmtQuerier); ok {
		return q.QueryStmtContext(ctx, stmt, query, args...)
	}

	return stmt.QueryContext(ctx, args...)
}

func (d *Database) resolveHandler(o *Options) (RowHandler, error) {
	if o.HandlerName != "" {
		return d.registry.Lookup(o.HandlerName)
	}

	return o.Handler, nil
}

// deliver walks every result set of rows and returns how many there were.
func (d *Database) deliver(rows *sql.Rows, names []string, handler RowHandler) (int, error) {
	sets := 0

	for {
		sets++

		if err := d.deliverSet(rows, names, handler); err != nil {
			return sets, err
		}

		if !rows.NextResultSet() {
			break
		}
	}

	return sets, rows.Err()
}

func (d *Database) deliverSet(rows *sql.Rows, names []string, handler RowHandler) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	if names == nil {
		names = DedupColumns(columns)
	}

	values := make([]any, len(columns))
	dest := make([]any, len(columns))

	for i := range values {
		dest[i] = &values[i]
	}

	n := min(len(names), len(values))
	row := Row{columns: names[:n], values: values[:n]}

	scan := func() error {
		if err := rows.Scan(dest...); err != nil {
			return err
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		return nil
	}

	if !rows.Next() {
		return rows.Err()
	}

	if err := scan(); err != nil {
		return err
	}

	if handler == nil {
		first := row.clone()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}

			selectByShape(first.Len()).Handle(&d.results, first)

			return nil
		}

		handler = FetchRows
		handler.Handle(&d.results, first)

		if err := scan(); err != nil {
			return err
		}
	}

	handler.Handle(&d.results, row)

	for rows.Next() {
		if err := scan(); err != nil {
			return err
		}

		handler.Handle(&d.results, row)
	}

	return rows.Err()
}

// selectByShape picks the builtin for a result set holding exactly one row with the given number
// of output names. A row without names is still delivered as an empty mapping.
func selectByShape(names int) Builtin {
	switch names {
	case 0:
		return FetchRows
	case 1:
		return FetchField
	default:
		return FetchRow
	}
}

func (d *Database) abort(ctx context.Context, kind Kind, err error) *Database {
	d.results.Clear()
	d.fail(ctx, newError(kind, err))

	return d
}

func (d *Database) fail(ctx context.Context, e *Error) {
	d.err = e

	span := trace.SpanFromContext(ctx)
	span.RecordError(e)
	span.SetStatus(codes.Error, e.Message)

	logging.NewContextLogger(ctx, d.logger).Errorf("%s: %s", e.Kind, e.Message)

	if d.metrics != nil {
		d.metrics.IncrementCounter(ctx, errorCounter, "kind", string(e.Kind))
	}

	d.onError(e.Kind, e.Message)
}
