package sql

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sllt/zdb/pkg/zdb/config"
	"github.com/sllt/zdb/pkg/zdb/logging"
)

func getDB(t *testing.T, level logging.Level) (*DB, sqlmock.Sqlmock, *MockMetrics, *bytes.Buffer) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	t.Cleanup(func() { mockDB.Close() })

	ctrl := gomock.NewController(t)
	metrics := NewMockMetrics(ctrl)
	buf := &bytes.Buffer{}

	db := Wrap(mockDB, &DBConfig{Dialect: DialectMySQL, HostName: "localhost", Database: "test"},
		logging.NewWriterLogger(level, buf), metrics)

	return db, mock, metrics, buf
}

func TestDB_QueryContextLogsAndRecords(t *testing.T) {
	db, mock, metrics, buf := getDB(t, logging.DEBUG)

	mock.ExpectQuery("SELECT id FROM users WHERE id = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	metrics.EXPECT().RecordHistogram(gomock.Any(), "app_sql_stats", gomock.Any(), "hostname", "localhost",
		"database", "test", "type", "SELECT", "status", "ok")

	rows, err := db.QueryContext(context.Background(), "SELECT id FROM users WHERE id = ?", 1)
	require.NoError(t, err)
	require.NoError(t, rows.Err())
	rows.Close()

	assert.Contains(t, buf.String(), `"call":"query"`)
	assert.Contains(t, buf.String(), `"query":"SELECT id FROM users WHERE id = ?"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_PrepareContext(t *testing.T) {
	db, mock, metrics, buf := getDB(t, logging.DEBUG)

	mock.ExpectPrepare("SELECT name FROM users WHERE id = ?")

	metrics.EXPECT().RecordHistogram(gomock.Any(), "app_sql_stats", gomock.Any(), "hostname", "localhost",
		"database", "test", "type", "SELECT", "status", "ok")

	stmt, err := db.PrepareContext(context.Background(), "SELECT name FROM users WHERE id = ?")
	require.NoError(t, err)
	require.NotNil(t, stmt)

	assert.Contains(t, buf.String(), `"call":"prepare"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_QueryStmtContext(t *testing.T) {
	db, mock, metrics, buf := getDB(t, logging.DEBUG)

	mock.ExpectPrepare("SELECT name FROM users WHERE id = ?").
		ExpectQuery().WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ann"))

	metrics.EXPECT().RecordHistogram(gomock.Any(), "app_sql_stats", gomock.Any(), "hostname", "localhost",
		"database", "test", "type", "SELECT", "status", "ok").Times(2)

	ctx := context.Background()

	stmt, err := db.PrepareContext(ctx, "SELECT name FROM users WHERE id = ?")
	require.NoError(t, err)

	rows, err := db.QueryStmtContext(ctx, stmt, "SELECT name FROM users WHERE id = ?", 5)
	require.NoError(t, err)
	require.NoError(t, rows.Err())
	rows.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"call":"prepare"`)
	assert.Contains(t, lines[1], `"call":"stmt.query"`)
	assert.Contains(t, lines[1], `"args":[5]`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_ExecContextAboveDebugIsSilent(t *testing.T) {
	db, mock, metrics, buf := getDB(t, logging.INFO)

	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 2))

	metrics.EXPECT().RecordHistogram(gomock.Any(), "app_sql_stats", gomock.Any(), "hostname", "localhost",
		"database", "test", "type", "DELETE", "status", "ok")

	res, err := db.ExecContext(context.Background(), "DELETE FROM users")
	require.NoError(t, err)

	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.Empty(t, buf.String())
}

func TestDB_Transaction(t *testing.T) {
	db, mock, metrics, buf := getDB(t, logging.DEBUG)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectCommit()

	metrics.EXPECT().RecordHistogram(gomock.Any(), "app_sql_stats", gomock.Any(), "hostname", "localhost",
		"database", "test", "type", gomock.Any(), "status", "ok").Times(3)

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	rows, err := tx.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	rows.Close()

	require.NoError(t, tx.Commit())

	assert.Contains(t, buf.String(), `"call":"tx.query"`)
	assert.Contains(t, buf.String(), `"call":"tx.commit"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_PrettyPrint(t *testing.T) {
	buf := &bytes.Buffer{}

	l := &Log{Call: "query", Query: "SELECT *\n\t FROM users", Duration: 120}
	l.PrettyPrint(buf)

	out := buf.String()
	assert.Contains(t, out, "query")
	assert.Contains(t, out, "SELECT * FROM users")
	assert.Contains(t, out, "120")
	assert.NotContains(t, out, "160m")

	buf.Reset()

	(&Log{Call: "exec", Query: "DELETE FROM t", Error: "locked"}).PrettyPrint(buf)

	assert.Contains(t, buf.String(), "locked")
}

func TestDB_FailedCallIsRecordedAsError(t *testing.T) {
	db, mock, metrics, buf := getDB(t, logging.DEBUG)

	mock.ExpectExec("UPDATE users SET name = ?").WithArgs("x").WillReturnError(errors.New("read-only"))

	metrics.EXPECT().RecordHistogram(gomock.Any(), "app_sql_stats", gomock.Any(), "hostname", "localhost",
		"database", "test", "type", "UPDATE", "status", "error")

	_, err := db.ExecContext(context.Background(), "UPDATE users SET name = ?", "x")
	require.Error(t, err)

	assert.Contains(t, buf.String(), `"error":"read-only"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementType(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"select * from t", "SELECT"},
		{"  \n INSERT INTO t VALUES (1)", "INSERT"},
		{"", ""},
	}

	for i, tc := range tests {
		assert.Equal(t, tc.want, statementType(tc.query), "TEST[%d]: %q failed", i, tc.query)
	}
}

func TestDBConfig_DSN(t *testing.T) {
	tests := []struct {
		desc     string
		cfg      DBConfig
		driver   string
		contains []string
	}{
		{
			desc:     "mysql defaults",
			cfg:      DBConfig{HostName: "localhost", User: "root", Password: "secret", Database: "app"},
			driver:   DialectMySQL,
			contains: []string{"root:secret@tcp(localhost:3306)/app", "charset=utf8"},
		},
		{
			desc: "mysql multi statements",
			cfg: DBConfig{Dialect: DialectMySQL, HostName: "db", Port: 3307, User: "u", Database: "d",
				Charset: "utf8mb4", MultiStatements: true},
			driver:   DialectMySQL,
			contains: []string{"u@tcp(db:3307)/d", "charset=utf8mb4", "multiStatements=true"},
		},
		{
			desc:     "postgres",
			cfg:      DBConfig{Dialect: DialectPostgres, HostName: "pg", User: "u", Password: "p", Database: "d"},
			driver:   DialectPostgres,
			contains: []string{"host='pg' port=5432 user='u' password='p' dbname='d' sslmode='disable'"},
		},
		{
			desc: "postgres values with spaces and quotes",
			cfg: DBConfig{Dialect: DialectPostgres, HostName: "pg", Port: 5433, User: "u", Password: `p w'x\y`,
				Database: "d", Charset: "UTF8"},
			driver:   DialectPostgres,
			contains: []string{"port=5433", `password='p w\'x\\y'`, "client_encoding='UTF8'"},
		},
		{
			desc:     "sqlite",
			cfg:      DBConfig{Dialect: DialectSQLite, Database: "file.db"},
			driver:   DialectSQLite,
			contains: []string{"file.db"},
		},
	}

	for i, tc := range tests {
		driver, dsn, err := tc.cfg.DSN()
		require.NoError(t, err, "TEST[%d]: %s failed", i, tc.desc)

		assert.Equal(t, tc.driver, driver, "TEST[%d]: %s failed", i, tc.desc)

		for _, c := range tc.contains {
			assert.True(t, strings.Contains(dsn, c), "TEST[%d]: %s failed, %q not in %q", i, tc.desc, c, dsn)
		}
	}
}

func TestDBConfig_DSNUnsupportedDialect(t *testing.T) {
	_, _, err := (&DBConfig{Dialect: "oracle"}).DSN()

	require.Error(t, err)
	assert.ErrorIs(t, err, errUnsupportedDialect)
}

func TestConfigFromEnv(t *testing.T) {
	cfg := ConfigFromEnv(config.NewMockConfig(map[string]string{
		"DB_DIALECT":             "postgres",
		"DB_HOST":                "pg",
		"DB_PORT":                "6432",
		"DB_USER":                "admin",
		"DB_PASSWORD":            "pw",
		"DB_NAME":                "orders",
		"DB_MULTI_STATEMENTS":    "true",
		"DB_MAX_OPEN_CONNECTION": "5",
	}))

	assert.Equal(t, &DBConfig{
		Dialect:         DialectPostgres,
		HostName:        "pg",
		User:            "admin",
		Password:        "pw",
		Port:            6432,
		Database:        "orders",
		Charset:         "utf8",
		SSLMode:         "disable",
		MultiStatements: true,
		MaxOpenConns:    5,
	}, cfg)
}

func TestNewSQL_SQLite(t *testing.T) {
	db, err := NewSQL(context.Background(), &DBConfig{Dialect: DialectSQLite, Database: ":memory:", MaxOpenConns: 1},
		logging.NewWriterLogger(logging.INFO, &bytes.Buffer{}), nil)
	require.NoError(t, err)

	defer db.Close()

	assert.Equal(t, DialectSQLite, db.Dialect())

	var one int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestNewSQL_UnsupportedDialect(t *testing.T) {
	_, err := NewSQL(context.Background(), &DBConfig{Dialect: "db2"}, nil, nil)

	require.ErrorIs(t, err, errUnsupportedDialect)
}
