package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang/glog"
	"k8s.io/utils/clock"

	"quiz-runner/internal/attempt"
	"quiz-runner/internal/backend"
	"quiz-runner/internal/config"
	"quiz-runner/internal/progress"
	"quiz-runner/internal/progress/redisstore"
	"quiz-runner/internal/progress/sqlite"
	"quiz-runner/internal/timer"
)

// App holds the process-wide pieces shared by every screen: one progress
// store and one watchdog.
type App struct {
	Client      *backend.Client
	Store       *progress.Store
	Finisher    *attempt.Finisher
	Screen      *attempt.Screen
	Coordinator *timer.Coordinator

	persistence progress.Backend
}

func New(ctx context.Context, cfg *config.Config, clk clock.WithTicker) (*App, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}

	policy, err := attempt.ParsePolicy(cfg.ConflictPolicy)
	if err != nil {
		return nil, err
	}

	persistence, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}

	store, err := progress.Open(ctx, persistence, progress.WithClock(clk), progress.WithKeyPrefix(cfg.KeyPrefix))
	if err != nil {
		_ = persistence.Close()
		return nil, err
	}

	client := backend.NewClient(cfg.ServerURL, &http.Client{Timeout: cfg.HTTPTimeout}, backend.WithAuthToken(cfg.AuthToken))
	finisher := attempt.NewFinisher(store, client)

	return &App{
		Client:      client,
		Store:       store,
		Finisher:    finisher,
		Screen:      attempt.NewScreen(store, client, finisher, policy),
		Coordinator: timer.NewCoordinator(store, finisher, clk, timer.WithInterval(cfg.TickInterval)),
		persistence: persistence,
	}, nil
}

// OpenBackend picks the progress persistence named by cfg.Store.
func OpenBackend(cfg *config.Config) (progress.Backend, error) {
	switch cfg.Store {
	case config.StoreSQLite, "":
		glog.V(1).Infof("persisting progress in sqlite database %s", cfg.SQLitePath)
		return sqlite.NewSQLiteStore(cfg.SQLitePath)
	case config.StoreRedis:
		glog.V(1).Infof("persisting progress in redis")
		return redisstore.NewRedisStore(cfg.RedisURL)
	case config.StoreMemory:
		glog.Warningf("progress is kept in memory and will not survive a restart")
		return progress.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown progress store %q", cfg.Store)
	}
}

func (a *App) Close() error {
	return a.persistence.Close()
}
