package zdb

import (
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Kind names the class of a failure. The value is what the error callback receives.
type Kind string

const (
	KindConnectionCreation Kind = "connection_creation"
	KindStatementPrepare   Kind = "statement_prepare_error"
	KindExecute            Kind = "execute_error"
	KindUnknownHandler     Kind = "unknown_handler"
)

var (
	// ErrConnectionCreation matches failures to open or ping a connection.
	ErrConnectionCreation = errors.New("connection creation failed")
	// ErrStatementPrepare matches failures to prepare a statement.
	ErrStatementPrepare = errors.New("statement prepare failed")
	// ErrExecute matches failures while executing a statement or reading its rows.
	ErrExecute = errors.New("execute failed")
	// ErrUnknownHandler is returned for handler names absent from the registry.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrNoConnection is reported as an execute error when Query has no connection to run on.
	ErrNoConnection = errors.New("no connection")
	// ErrBindParams is reported as an execute error when parameters do not fit the type signature.
	ErrBindParams = errors.New("parameters do not match type signature")
)

//nolint:gochecknoglobals // fixed mapping.
var kindSentinels = map[Kind]error{
	KindConnectionCreation: ErrConnectionCreation,
	KindStatementPrepare:   ErrStatementPrepare,
	KindExecute:            ErrExecute,
	KindUnknownHandler:     ErrUnknownHandler,
}

// Error is the failure recorded by a Database call.
type Error struct {
	Kind Kind
	// Code is the driver's error code when the driver reports one: the MySQL error number, the
	// PostgreSQL SQLSTATE or the SQLite result code.
	Code string
	// Message is what GetError returns, "<code>: <driver message>" when a code is known.
	Message string
	Err     error
}

func newError(kind Kind, err error) *Error {
	code, msg := driverError(err)

	message := msg
	if code != "" {
		message = code + ": " + msg
	}

	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func driverError(err error) (code, message string) {
	var (
		myErr   *mysql.MySQLError
		pqErr   *pq.Error
		liteErr *sqlite.Error
	)

	switch {
	case errors.As(err, &myErr):
		return strconv.Itoa(int(myErr.Number)), myErr.Message
	case errors.As(err, &pqErr):
		return string(pqErr.Code), pqErr.Message
	case errors.As(err, &liteErr):
		return strconv.Itoa(liteErr.Code()), liteErr.Error()
	default:
		return "", err.Error()
	}
}
