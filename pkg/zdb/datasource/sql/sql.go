package sql

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/sllt/zdb/pkg/zdb/config"
	"github.com/sllt/zdb/pkg/zdb/logging"
)

const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultMySQLPort    = 3306
	defaultPostgresPort = 5432
	defaultCharset      = "utf8"
)

var errUnsupportedDialect = errors.New("unsupported dialect")

// DBConfig holds everything needed to open a connection pool.
type DBConfig struct {
	Dialect  string
	HostName string
	User     string
	Password string
	Port     int
	Database string
	// Charset is sent as the connection charset for mysql and as client_encoding for postgres.
	Charset string
	// SSLMode is only used by postgres; empty means disable.
	SSLMode string
	// MultiStatements allows several ;-separated statements in one mysql query.
	MultiStatements bool
	MaxOpenConns    int
	MaxIdleConns    int
}

// ConfigFromEnv reads DB_DIALECT, DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_CHARSET,
// DB_SSL_MODE, DB_MULTI_STATEMENTS, DB_MAX_OPEN_CONNECTION and DB_MAX_IDLE_CONNECTION.
func ConfigFromEnv(c config.Config) *DBConfig {
	cfg := &DBConfig{
		Dialect:         c.GetOrDefault("DB_DIALECT", DialectMySQL),
		HostName:        c.GetOrDefault("DB_HOST", "localhost"),
		User:            c.Get("DB_USER"),
		Password:        c.Get("DB_PASSWORD"),
		Database:        c.Get("DB_NAME"),
		Charset:         c.GetOrDefault("DB_CHARSET", defaultCharset),
		SSLMode:         c.GetOrDefault("DB_SSL_MODE", "disable"),
		MultiStatements: c.Get("DB_MULTI_STATEMENTS") == "true",
	}

	cfg.Port, _ = strconv.Atoi(c.Get("DB_PORT"))
	cfg.MaxOpenConns, _ = strconv.Atoi(c.Get("DB_MAX_OPEN_CONNECTION"))
	cfg.MaxIdleConns, _ = strconv.Atoi(c.Get("DB_MAX_IDLE_CONNECTION"))

	return cfg
}

// DSN returns the driver name and data source name for the configured dialect.
func (c *DBConfig) DSN() (driver, dsn string, err error) {
	switch c.Dialect {
	case "", DialectMySQL:
		return DialectMySQL, c.mysqlDSN(), nil
	case DialectPostgres:
		port := c.Port
		if port == 0 {
			port = defaultPostgresPort
		}

		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}

		pairs := []string{
			"host=" + pqQuote(c.HostName),
			"port=" + strconv.Itoa(port),
			"user=" + pqQuote(c.User),
			"password=" + pqQuote(c.Password),
			"dbname=" + pqQuote(c.Database),
			"sslmode=" + pqQuote(sslMode),
		}

		if c.Charset != "" {
			pairs = append(pairs, "client_encoding="+pqQuote(c.Charset))
		}

		return DialectPostgres, strings.Join(pairs, " "), nil
	case DialectSQLite:
		return DialectSQLite, c.Database, nil
	default:
		return "", "", fmt.Errorf("%w: %q", errUnsupportedDialect, c.Dialect)
	}
}

//nolint:gochecknoglobals // stateless.
var pqEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// pqQuote renders v as a single-quoted lib/pq connection string value.
func pqQuote(v string) string {
	return "'" + pqEscaper.Replace(v) + "'"
}

func (c *DBConfig) mysqlDSN() string {
	port := c.Port
	if port == 0 {
		port = DefaultMySQLPort
	}

	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.HostName, strconv.Itoa(port))
	cfg.DBName = c.Database
	cfg.MultiStatements = c.MultiStatements

	charset := c.Charset
	if charset == "" {
		charset = defaultCharset
	}

	cfg.Params = map[string]string{"charset": charset}

	return cfg.FormatDSN()
}

// NewSQL opens a traced pool for cfg and verifies it with a ping.
func NewSQL(ctx context.Context, cfg *DBConfig, logger logging.Logger, metrics Metrics) (*DB, error) {
	driver, dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := otelsql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	if logger != nil {
		logger.Debugf("connected to '%s' database at '%s:%d'", cfg.Database, cfg.HostName, cfg.Port)
	}

	return Wrap(db, cfg, logger, metrics), nil
}
