package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"quiz-runner/internal/attempt"
	"quiz-runner/internal/progress"
	"quiz-runner/internal/quiz"
)

const DefaultInterval = time.Second

type Finisher interface {
	Finish(ctx context.Context, attemptID uuid.UUID, reason attempt.Reason) (*quiz.ScoreResult, error)
}

// Tick is published once per interval while an attempt is in progress.
type Tick struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	QuizID    string    `json:"quiz_id"`
	Remaining int       `json:"remaining_seconds"`
}

type Option func(*Coordinator)

func WithInterval(interval time.Duration) Option {
	return func(c *Coordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// Coordinator is the watchdog that submits an attempt when its time runs
// out. It runs for the life of the process, whether or not any screen is
// showing the attempt.
type Coordinator struct {
	store    *progress.Store
	finisher Finisher
	clock    clock.WithTicker
	interval time.Duration

	mu       sync.Mutex
	handlers []func(Tick)

	inflight sync.WaitGroup
}

func NewCoordinator(store *progress.Store, finisher Finisher, clk clock.WithTicker, opts ...Option) *Coordinator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	c := &Coordinator{
		store:    store,
		finisher: finisher,
		clock:    clk,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnTick registers fn for every tick. fn runs on the watchdog goroutine and
// must not block.
func (c *Coordinator) OnTick(fn func(Tick)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Run blocks until ctx is cancelled. Before returning it waits for a
// submission it started to settle.
func (c *Coordinator) Run(ctx context.Context) error {
	changes, unwatch := c.store.Watch()
	defer unwatch()
	defer c.inflight.Wait()

	w := &watch{coordinator: c}
	defer w.stopTicker()

	glog.V(2).Infof("attempt watchdog running with %s interval", c.interval)
	w.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			w.reconcile(ctx)
		case <-w.tickC:
			w.reconcile(ctx)
		}
	}
}

// watch is the per-Run ticker state. It is only touched from Run's
// goroutine.
type watch struct {
	coordinator *Coordinator

	ticker clock.Ticker
	tickC  <-chan time.Time
	armed  uuid.UUID
	fired  uuid.UUID
}

func (w *watch) reconcile(ctx context.Context) {
	c := w.coordinator
	state := c.store.Read()

	if !state.InProgress() {
		w.stopTicker()
		w.armed = uuid.Nil
		return
	}
	if state.AttemptID == w.fired {
		return
	}
	if state.AttemptID != w.armed {
		w.stopTicker()
		w.armed = state.AttemptID
		glog.V(2).Infof("watching attempt %s for quiz %s", state.AttemptID, state.QuizID)
	}
	if w.ticker == nil {
		w.ticker = c.clock.NewTicker(c.interval)
		w.tickC = w.ticker.C()
	}

	// Recomputed from the wall clock every time so missed or late ticks
	// never cause drift.
	remaining := progress.Remaining(state, c.clock.Now(), 0)
	c.publish(Tick{AttemptID: state.AttemptID, QuizID: state.QuizID, Remaining: remaining})
	if remaining > 0 {
		return
	}

	w.stopTicker()
	w.fired = state.AttemptID
	c.expire(ctx, state)
}

func (w *watch) stopTicker() {
	if w.ticker == nil {
		return
	}
	w.ticker.Stop()
	w.ticker = nil
	w.tickC = nil
}

func (c *Coordinator) expire(ctx context.Context, state progress.State) {
	glog.Infof("time is up for quiz %s, submitting attempt %s", state.QuizID, state.AttemptID)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		_, err := c.finisher.Finish(context.WithoutCancel(ctx), state.AttemptID, attempt.ReasonTimeout)
		switch {
		case errors.Is(err, progress.ErrNoActiveAttempt):
			glog.V(2).Infof("attempt %s was already submitted", state.AttemptID)
		case err != nil:
			glog.Errorf("timed out submission for quiz %s failed: %v", state.QuizID, err)
		}
	}()
}

func (c *Coordinator) publish(tick Tick) {
	c.mu.Lock()
	handlers := make([]func(Tick), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(tick)
	}
}
