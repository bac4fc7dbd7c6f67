package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"quiz-runner/internal/app"
	"quiz-runner/internal/config"
	"quiz-runner/internal/localapi"
)

func main() {
	cfg := config.Load()

	addr := flag.String("addr", cfg.ListenAddr, "HTTP listen address")
	serverURL := flag.String("server", cfg.ServerURL, "quiz backend base URL")
	store := flag.String("store", cfg.Store, "progress store: sqlite, redis or memory")
	policy := flag.String("conflict-policy", cfg.ConflictPolicy, "what to do when a different quiz is in progress: reject or replace")
	_ = flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	cfg.ListenAddr = *addr
	cfg.ServerURL = *serverURL
	cfg.Store = *store
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

	hub := localapi.NewHub()
	runner.Coordinator.OnTick(hub.PublishTick)
	runner.Finisher.OnSettled(hub.PublishSettlement)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           localapi.NewRouter(localapi.NewAPI(runner.Screen, runner.Store, hub), cfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Coordinator.Run(gctx)
	})
	g.Go(func() error {
		glog.Infof("quiz runner listening on %s, quiz backend %s", cfg.ListenAddr, cfg.ServerURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
