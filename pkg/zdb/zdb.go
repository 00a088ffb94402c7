// Package zdb runs queries against a relational database and shapes the rows they return into
// scalars, single rows or sequences of rows through a registry of row handlers.
//
// A Database records the outcome of its last call, so calls chain naturally:
//
//	rows := db.Query(ctx, "SELECT id, name FROM users WHERE age > ?", zdb.Types("i"), zdb.Params(18)).GetResults()
//
// A Database is not safe for concurrent use; create one per session.
package zdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sllt/zdb/pkg/zdb/config"
	zsql "github.com/sllt/zdb/pkg/zdb/datasource/sql"
	"github.com/sllt/zdb/pkg/zdb/logging"
	"github.com/sllt/zdb/pkg/zdb/metrics"
)

const (
	errorCounter = "app_zdb_errors"
	sqlHistogram = "app_sql_stats"
)

// Conn is what a query runs on. *sql.DB, *sql.Conn, *sql.Tx and the datasource/sql wrappers all
// satisfy it.
type Conn interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// StmtQuerier is implemented by connections that observe executions of their prepared statements.
// Query uses it for prepared mode when the connection provides it.
type StmtQuerier interface {
	QueryStmtContext(ctx context.Context, stmt *sql.Stmt, query string, args ...any) (*sql.Rows, error)
}

// ErrorHandler is invoked synchronously with the kind and message of every failure. Its return
// value is ignored.
type ErrorHandler func(kind Kind, message string) bool

func noopErrorHandler(Kind, string) bool { return false }

// Database executes queries and holds the results and error state of the last one.
type Database struct {
	conn     Conn
	registry *Registry
	results  Results
	err      *Error
	onError  ErrorHandler
	query    string
	charset  string

	logger  logging.Logger
	metrics metrics.Manager
	tracer  trace.Tracer
}

// DatabaseOption configures a Database at construction.
type DatabaseOption func(*Database)

// WithConnection sets the initial connection.
func WithConnection(c Conn) DatabaseOption {
	return func(d *Database) {
		d.conn = c
	}
}

// WithLogger sets the logger queries and failures are reported to.
func WithLogger(l logging.Logger) DatabaseOption {
	return func(d *Database) {
		d.UseLogger(l)
	}
}

// WithMetrics registers the zdb metrics on m and records to it.
func WithMetrics(m metrics.Manager) DatabaseOption {
	return func(d *Database) {
		d.UseMetrics(m)
	}
}

// WithErrorHandler sets the failure callback.
func WithErrorHandler(h ErrorHandler) DatabaseOption {
	return func(d *Database) {
		d.SetErrorHandler(h)
	}
}

// New returns a Database with the builtin handlers registered and no connection.
func New(opts ...DatabaseOption) *Database {
	d := &Database{
		registry: NewRegistry(),
		onError:  noopErrorHandler,
		charset:  "utf8",
		logger:   logging.NewWriterLogger(logging.INFO, io.Discard),
		tracer:   otel.GetTracerProvider().Tracer("zdb"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	return d
}

//nolint:gochecknoglobals // process default instance.
var (
	defaultDB   *Database
	defaultOnce sync.Once
)

// Default returns the process wide Database, creating it on first use.
func Default() *Database {
	defaultOnce.Do(func() {
		defaultDB = New()
	})

	return defaultDB
}

// NewFromConfig builds a Database and connects it using the DB_* settings of cfg.
func NewFromConfig(ctx context.Context, cfg config.Config, opts ...DatabaseOption) *Database {
	d := New(opts...)

	dbConfig := zsql.ConfigFromEnv(cfg)
	if dbConfig.Charset != "" {
		d.charset = dbConfig.Charset
	}

	return d.Connect(ctx, dbConfig)
}

func (d *Database) UseLogger(l logging.Logger) {
	if l != nil {
		d.logger = l
	}
}

func (d *Database) UseMetrics(m metrics.Manager) {
	if m == nil {
		return
	}

	m.NewCounter(errorCounter, "Number of failed zdb calls by kind.")
	m.NewHistogram(sqlHistogram, "Response time of SQL queries in milliseconds.",
		.05, .075, .1, .125, .15, .2, .3, .5, .75, 1, 2, 3, 4, 5, 7.5, 10)

	d.metrics = m
}

func (d *Database) UseTracer(t trace.Tracer) {
	if t != nil {
		d.tracer = t
	}
}

// UseCharset sets the charset requested by connections created afterwards.
func (d *Database) UseCharset(charset string) {
	d.charset = charset
}

// CreateConnection connects to a MySQL server and makes the connection current. A port of 0 means
// 3306. On failure the previous connection is kept and a connection_creation error is recorded.
func (d *Database) CreateConnection(ctx context.Context, host, user, password, database string, port int) *Database {
	return d.Connect(ctx, &zsql.DBConfig{
		Dialect:  zsql.DialectMySQL,
		HostName: host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
	})
}

// Connect opens a connection for cfg and makes it current. An empty charset in cfg is filled with
// the Database charset.
func (d *Database) Connect(ctx context.Context, cfg *zsql.DBConfig) *Database {
	c := *cfg
	cfg = &c

	if cfg.Dialect == "" {
		cfg.Dialect = zsql.DialectMySQL
	}

	if cfg.Port == 0 && cfg.Dialect == zsql.DialectMySQL {
		cfg.Port = zsql.DefaultMySQLPort
	}

	if cfg.Charset == "" {
		cfg.Charset = d.charset
	}

	db, err := zsql.NewSQL(ctx, cfg, d.logger, d.metrics)
	if err != nil {
		code, msg := driverError(err)

		e := newError(KindConnectionCreation, err)
		e.Message = fmt.Sprintf("Failed to connect to %s: (%s) %s", dialectName(cfg.Dialect), code, msg)

		d.fail(ctx, e)

		return d
	}

	d.err = nil
	d.conn = db

	return d
}

func dialectName(dialect string) string {
	switch dialect {
	case zsql.DialectPostgres:
		return "PostgreSQL"
	case zsql.DialectSQLite:
		return "SQLite"
	case zsql.DialectMySQL:
		return "MySQL"
	default:
		return dialect
	}
}

// SetConnection replaces the current connection. The previous one is not closed.
func (d *Database) SetConnection(c Conn) *Database {
	d.conn = c

	return d
}

// GetConnection returns the current connection, nil when none was set.
func (d *Database) GetConnection() Conn {
	return d.conn
}

// GetResults returns what the handlers of the last query accumulated.
func (d *Database) GetResults() any {
	return d.results.Get()
}

// Get is an alias of GetResults.
func (d *Database) Get() any {
	return d.GetResults()
}

// Results exposes the accumulator itself.
func (d *Database) Results() *Results {
	return &d.results
}

func (d *Database) SetResults(v any) *Database {
	d.results.Set(v)

	return d
}

func (d *Database) AppendResults(row map[string]any) *Database {
	d.results.Append(row)

	return d
}

// ClearResults empties the accumulator and resets the error state, leaving Success true.
func (d *Database) ClearResults() *Database {
	d.results.Clear()
	d.err = nil

	return d
}

// Success reports whether the last call recorded no error.
func (d *Database) Success() bool {
	return d.err == nil
}

// GetError returns the message of the recorded error, "" after a successful call.
func (d *Database) GetError() string {
	if d.err == nil {
		return ""
	}

	return d.err.Message
}

// Err returns the recorded error as *Error, or nil.
func (d *Database) Err() error {
	if d.err == nil {
		return nil
	}

	return d.err
}

// GetQuery returns the text of the last query.
func (d *Database) GetQuery() string {
	return d.query
}

// SetErrorHandler replaces the failure callback. Nil restores the no-op default.
func (d *Database) SetErrorHandler(h ErrorHandler) *Database {
	if h == nil {
		h = noopErrorHandler
	}

	d.onError = h

	return d
}

// RegisterHandler stores h under name, replacing any handler registered under that exact name.
func (d *Database) RegisterHandler(name string, h RowHandler) *Database {
	d.registry.Register(name, h)

	return d
}

// GetHandler returns the handler registered under name. An unknown name is recorded as an
// unknown_handler failure and returns nil.
func (d *Database) GetHandler(name string) RowHandler {
	h, err := d.registry.Lookup(name)
	if err != nil {
		d.fail(context.Background(), newError(KindUnknownHandler, err))

		return nil
	}

	return h
}

// Handlers lists the registered handler names.
func (d *Database) Handlers() []string {
	return d.registry.Names()
}
