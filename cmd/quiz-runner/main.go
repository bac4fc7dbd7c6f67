package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/golang/glog"

	"quiz-runner/internal/app"
	"quiz-runner/internal/cli"
	"quiz-runner/internal/config"
)

func main() {
	cfg := config.Load()

	serverURL := flag.String("server", cfg.ServerURL, "quiz backend base URL")
	store := flag.String("store", cfg.Store, "progress store: sqlite, redis or memory")
	sqlitePath := flag.String("sqlite-path", cfg.SQLitePath, "sqlite progress database path")
	redisURL := flag.String("redis-url", cfg.RedisURL, "redis progress store URL")
	policy := flag.String("conflict-policy", cfg.ConflictPolicy, "what to do when a different quiz is in progress: reject or replace")
	_ = flag.Set("logtostderr", "true")
	_ = flag.Set("stderrthreshold", "WARNING")
	flag.Parse()
	defer glog.Flush()

	cfg.ServerURL = *serverURL
	cfg.Store = *store
	cfg.SQLitePath = *sqlitePath
	cfg.RedisURL = *redisURL
	cfg.ConflictPolicy = *policy

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer runner.Close()

	out := cli.NewLockedWriter(os.Stdout)
	runner.Finisher.OnSettled(cli.SettlementPrinter(out))

	watchdogCtx, cancelWatchdog := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Coordinator.Run(watchdogCtx); err != nil {
			glog.Errorf("attempt watchdog stopped: %v", err)
		}
	}()

	// The REPL blocks on stdin, so an interrupt is observed here instead.
	done := make(chan error, 1)
	go func() {
		done <- cli.Run(ctx, os.Stdin, out, cli.Config{
			Screen:    runner.Screen,
			Store:     runner.Store,
			Catalog:   runner.Client,
			ServerURL: cfg.ServerURL,
		})
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		fmt.Fprintln(out, "\ninterrupted; progress is saved")
	}

	cancelWatchdog()
	wg.Wait()
	return err
}
