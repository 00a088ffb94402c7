package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/sllt/zdb/pkg/zdb"
	"github.com/sllt/zdb/pkg/zdb/logging"
	"github.com/sllt/zdb/pkg/zdb/metrics"
)

const shutdownTimeout = 5 * time.Second

func watchCommand() *cli.Command {
	flags := append(queryFlags(),
		&cli.DurationFlag{Name: "interval", Usage: "time between two runs", Value: 15 * time.Second},
		&cli.StringFlag{Name: "metrics-addr", Usage: "address serving /metrics", Value: ":2121"},
		&cli.IntFlag{Name: "count", Usage: "stop after this many runs (0 runs until interrupted)"},
	)

	return &cli.Command{
		Name:  "watch",
		Usage: "Run one query repeatedly and expose its timings and failures on /metrics",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "sql",
			},
		},
		Flags:  flags,
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("sql")
	if strings.TrimSpace(query) == "" {
		return errMissingQuery
	}

	interval := cmd.Duration("interval")
	if interval <= 0 {
		return fmt.Errorf("%w: %s", errInvalidInterval, interval)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(logging.GetLevelFromString(cmd.String("log-level")))

	manager, handler, err := metrics.NewPrometheusManager("zdb", prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}

	srv, err := metrics.NewServer(cmd.String("metrics-addr"), handler)
	if err != nil {
		return err
	}

	go srv.Run(logger)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Logf("serving metrics on %s", srv.Addr())

	db := zdb.New(zdb.WithLogger(logger), zdb.WithMetrics(manager)).Connect(ctx, connectionConfig(cmd, logger))
	if !db.Success() {
		return fmt.Errorf("%w: %s", errQueryFailed, db.GetError())
	}

	if closer, ok := db.GetConnection().(io.Closer); ok {
		defer closer.Close()
	}

	opts := queryOptions(cmd)
	ticker := time.NewTicker(interval)

	defer ticker.Stop()

	for runs := 1; ; runs++ {
		if db.Query(ctx, query, opts...).Success() {
			fmt.Fprintf(cmd.Root().Writer, "%s run %d: %v\n", time.Now().Format(time.RFC3339), runs, db.GetResults())
		}

		if limit := cmd.Int("count"); limit > 0 && runs >= limit {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
