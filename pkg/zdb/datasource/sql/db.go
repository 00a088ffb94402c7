// Package sql opens relational database connections for zdb and wraps them so that every
// prepare, query and exec is logged and timed.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sllt/zdb/pkg/zdb/logging"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Metrics is the part of metrics.Manager the SQL layer records to.
type Metrics interface {
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
}

// Log is the payload logged at DEBUG for every database call.
type Log struct {
	Call     string `json:"call"`
	Query    string `json:"query"`
	Duration int64  `json:"duration"`
	Args     []any  `json:"args,omitempty"`
	Error    string `json:"error,omitempty"`
}

//nolint:gochecknoglobals // compiled once.
var whitespace = regexp.MustCompile(`\s+`)

func (l *Log) PrettyPrint(writer io.Writer) {
	color := 24
	if l.Error != "" {
		color = 160
	}

	fmt.Fprintf(writer, "\u001B[38;5;8m%-16s \u001B[38;5;%dmZDB\u001B[0m %8d\u001B[38;5;8mµs\u001B[0m %s",
		l.Call, color, l.Duration, collapse(l.Query))

	if l.Error != "" {
		fmt.Fprintf(writer, " \u001B[38;5;160m%s\u001B[0m", l.Error)
	}

	fmt.Fprintln(writer)
}

func collapse(query string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(query, " "))
}

// statementType is the upper-cased leading keyword of query, used as the "type" metric label.
func statementType(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	return strings.ToUpper(fields[0])
}

// observer logs and times calls made through DB and Tx. Either sink may be nil.
type observer struct {
	config  *DBConfig
	logger  logging.Logger
	metrics Metrics
}

func (o *observer) observe(ctx context.Context, start time.Time, call, query string, err error, args []any) {
	elapsed := time.Since(start)

	status := statusOK
	entry := &Log{Call: call, Query: query, Duration: elapsed.Microseconds(), Args: args}

	if err != nil {
		status = statusError
		entry.Error = err.Error()
	}

	if o.logger != nil {
		o.logger.Debug(entry)
	}

	if o.metrics != nil {
		o.metrics.RecordHistogram(ctx, "app_sql_stats", float64(elapsed.Milliseconds()),
			"hostname", o.config.HostName, "database", o.config.Database, "type", statementType(query),
			"status", status)
	}
}

// DB is an *sql.DB whose prepares, queries and execs are observed.
type DB struct {
	*sql.DB
	observer
}

// Wrap decorates an already opened pool. Any of config, logger and metrics may be nil.
func Wrap(db *sql.DB, config *DBConfig, logger logging.Logger, metrics Metrics) *DB {
	if config == nil {
		config = &DBConfig{}
	}

	return &DB{DB: db, observer: observer{config: config, logger: logger, metrics: metrics}}
}

// Dialect reports the configured dialect, one of mysql, postgres or sqlite.
func (d *DB) Dialect() string {
	return d.config.Dialect
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (rows *sql.Rows, err error) {
	defer func(start time.Time) { d.observe(ctx, start, "query", query, err, args) }(time.Now())

	return d.DB.QueryContext(ctx, query, args...)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (res sql.Result, err error) {
	defer func(start time.Time) { d.observe(ctx, start, "exec", query, err, args) }(time.Now())

	return d.DB.ExecContext(ctx, query, args...)
}

func (d *DB) PrepareContext(ctx context.Context, query string) (stmt *sql.Stmt, err error) {
	defer func(start time.Time) { d.observe(ctx, start, "prepare", query, err, nil) }(time.Now())

	return d.DB.PrepareContext(ctx, query)
}

// QueryStmtContext runs stmt, prepared from query on this pool, and observes the execution.
func (d *DB) QueryStmtContext(ctx context.Context, stmt *sql.Stmt, query string, args ...any) (rows *sql.Rows, err error) {
	defer func(start time.Time) { d.observe(ctx, start, "stmt.query", query, err, args) }(time.Now())

	return stmt.QueryContext(ctx, args...)
}

// BeginTx starts a transaction observed like the pool it came from.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	start := time.Now()

	tx, err := d.DB.BeginTx(ctx, opts)
	d.observe(ctx, start, "begin", "BEGIN", err, nil)

	if err != nil {
		return nil, err
	}

	return &Tx{Tx: tx, observer: d.observer}, nil
}

func (d *DB) Close() error {
	if d.DB == nil {
		return nil
	}

	return d.DB.Close()
}

// Tx is an *sql.Tx observed like DB. It satisfies zdb.Conn, so queries can run inside it.
type Tx struct {
	*sql.Tx
	observer
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (rows *sql.Rows, err error) {
	defer func(start time.Time) { t.observe(ctx, start, "tx.query", query, err, args) }(time.Now())

	return t.Tx.QueryContext(ctx, query, args...)
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (res sql.Result, err error) {
	defer func(start time.Time) { t.observe(ctx, start, "tx.exec", query, err, args) }(time.Now())

	return t.Tx.ExecContext(ctx, query, args...)
}

func (t *Tx) PrepareContext(ctx context.Context, query string) (stmt *sql.Stmt, err error) {
	defer func(start time.Time) { t.observe(ctx, start, "tx.prepare", query, err, nil) }(time.Now())

	return t.Tx.PrepareContext(ctx, query)
}

func (t *Tx) QueryStmtContext(ctx context.Context, stmt *sql.Stmt, query string, args ...any) (rows *sql.Rows, err error) {
	defer func(start time.Time) { t.observe(ctx, start, "tx.stmt.query", query, err, args) }(time.Now())

	return stmt.QueryContext(ctx, args...)
}

func (t *Tx) Commit() (err error) {
	defer func(start time.Time) { t.observe(context.Background(), start, "tx.commit", "COMMIT", err, nil) }(time.Now())

	return t.Tx.Commit()
}

func (t *Tx) Rollback() (err error) {
	defer func(start time.Time) { t.observe(context.Background(), start, "tx.rollback", "ROLLBACK", err, nil) }(time.Now())

	return t.Tx.Rollback()
}
