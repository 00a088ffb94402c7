package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/sllt/zdb/pkg/zdb"
	"github.com/sllt/zdb/pkg/zdb/config"
	zsql "github.com/sllt/zdb/pkg/zdb/datasource/sql"
	"github.com/sllt/zdb/pkg/zdb/logging"
)

var (
	errMissingQuery  = errors.New("please provide a query, e.g.: zdb query 'SELECT 1'")
	errUnknownFormat = errors.New("unknown output format")
	errQueryFailed   = errors.New("query failed")

	errInvalidInterval = errors.New("interval must be positive")
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "zdb",
		Usage:   "Run queries through the zdb executor and print what the handlers collected",
		Version: CLIVersion,
		Commands: []*cli.Command{
			{
				Name:  "query",
				Usage: "Run one query",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "sql",
					},
				},
				Flags:  queryFlags(),
				Action: runQuery,
			},
			watchCommand(),
			{
				Name:  "handlers",
				Usage: "List the registered handler names",
				Action: func(_ context.Context, cmd *cli.Command) error {
					for _, name := range zdb.New().Handlers() {
						fmt.Fprintln(cmd.Root().Writer, name)
					}

					return nil
				},
			},
		},
	}
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "dialect", Usage: "mysql, postgres or sqlite", Value: zsql.DialectMySQL},
		&cli.StringFlag{Name: "host", Usage: "database host", Value: "localhost"},
		&cli.IntFlag{Name: "port", Usage: "database port (0 uses the dialect default)"},
		&cli.StringFlag{Name: "user", Usage: "database user"},
		&cli.StringFlag{Name: "password", Usage: "database password", Sources: cli.EnvVars("ZDB_PASSWORD")},
		&cli.StringFlag{Name: "database", Usage: "database name, or file path for sqlite"},
		&cli.StringFlag{Name: "types", Usage: "parameter type signature, one of i, d, s, b per parameter"},
		&cli.StringSliceFlag{Name: "param", Usage: "positional parameter, repeatable"},
		&cli.StringFlag{Name: "handler", Usage: "registered handler name (default: chosen by result shape)"},
		&cli.StringSliceFlag{Name: "result", Usage: "output column name, repeatable"},
		&cli.StringFlag{Name: "format", Usage: "json or yaml", Value: "json"},
		&cli.StringFlag{Name: "env", Usage: "folder holding .env files with DB_* settings"},
		&cli.StringFlag{Name: "log-level", Usage: "DEBUG, INFO, WARN or ERROR", Value: "WARN"},
	}
}

func runQuery(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("sql")
	if strings.TrimSpace(query) == "" {
		return errMissingQuery
	}

	format := cmd.String("format")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("%w: %q", errUnknownFormat, format)
	}

	logger := logging.NewLogger(logging.GetLevelFromString(cmd.String("log-level")))

	db := zdb.New(zdb.WithLogger(logger)).Connect(ctx, connectionConfig(cmd, logger))
	if !db.Success() {
		return fmt.Errorf("%w: %s", errQueryFailed, db.GetError())
	}

	if closer, ok := db.GetConnection().(io.Closer); ok {
		defer closer.Close()
	}

	db.Query(ctx, query, queryOptions(cmd)...)
	if !db.Success() {
		return fmt.Errorf("%w: %s", errQueryFailed, db.GetError())
	}

	return render(cmd.Root().Writer, format, db.GetResults())
}

// connectionConfig reads DB_* settings from --env when given and lets explicitly set flags win.
func connectionConfig(cmd *cli.Command, logger logging.Logger) *zsql.DBConfig {
	cfg := &zsql.DBConfig{}

	if folder := cmd.String("env"); folder != "" {
		cfg = zsql.ConfigFromEnv(config.NewEnvFile(folder, logger))
	}

	for name, target := range map[string]*string{
		"dialect":  &cfg.Dialect,
		"host":     &cfg.HostName,
		"user":     &cfg.User,
		"password": &cfg.Password,
		"database": &cfg.Database,
	} {
		if cmd.IsSet(name) || *target == "" {
			*target = cmd.String(name)
		}
	}

	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}

	return cfg
}

func queryOptions(cmd *cli.Command) []zdb.Option {
	var opts []zdb.Option

	if types := cmd.String("types"); types != "" {
		opts = append(opts, zdb.Types(types))
	}

	if params := cmd.StringSlice("param"); len(params) > 0 {
		values := make([]any, len(params))
		for i, p := range params {
			values[i] = p
		}

		opts = append(opts, zdb.Params(values...))
	}

	if handler := cmd.String("handler"); handler != "" {
		opts = append(opts, zdb.HandlerName(handler))
	}

	if cmd.IsSet("result") {
		opts = append(opts, zdb.ResultNames(cmd.StringSlice("result")...))
	}

	return opts
}

func render(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return err
		}

		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
