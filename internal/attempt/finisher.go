package attempt

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"quiz-runner/internal/progress"
	"quiz-runner/internal/quiz"
)

type Reason string

const (
	ReasonManual  Reason = "manual"
	ReasonTimeout Reason = "timeout"
)

type Submitter interface {
	SubmitQuiz(ctx context.Context, quizID string, answers []int) (quiz.ScoreResult, error)
}

// Settlement describes how a claimed attempt ended.
type Settlement struct {
	AttemptID uuid.UUID
	QuizID    string
	Reason    Reason
	Score     *quiz.ScoreResult
	Err       error
}

// Finisher is the only path that submits an attempt. Manual submit and the
// watchdog both go through Finish, and only the first of them for a given
// attempt reaches the backend.
type Finisher struct {
	store     *progress.Store
	submitter Submitter

	mu    sync.Mutex
	hooks []func(Settlement)
}

func NewFinisher(store *progress.Store, submitter Submitter) *Finisher {
	return &Finisher{
		store:     store,
		submitter: submitter,
	}
}

// OnSettled registers fn to be called after every finished attempt,
// successful or not.
func (f *Finisher) OnSettled(fn func(Settlement)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

// Finish claims the attempt and submits it. It returns
// progress.ErrNoActiveAttempt without side effects if the attempt was
// already claimed or is not the active one. uuid.Nil means whatever
// attempt is active. The attempt is ended even if the submission fails.
func (f *Finisher) Finish(ctx context.Context, attemptID uuid.UUID, reason Reason) (*quiz.ScoreResult, error) {
	snapshot, ok := f.store.BeginSubmit(attemptID)
	if !ok {
		glog.V(2).Infof("%s submission skipped, attempt %s is not claimable", reason, attemptID)
		return nil, progress.ErrNoActiveAttempt
	}

	state := snapshot.State
	glog.Infof("submitting attempt %s for quiz %s (%s, %d/%d answered)",
		state.AttemptID, state.QuizID, reason, snapshot.Answers.Answered(), len(snapshot.Answers.Answers))

	settlement := Settlement{
		AttemptID: state.AttemptID,
		QuizID:    state.QuizID,
		Reason:    reason,
	}

	result, err := f.submitter.SubmitQuiz(ctx, state.QuizID, snapshot.Answers.Answers)
	if err != nil {
		glog.Errorf("failed to submit quiz %s: %v", state.QuizID, err)
		settlement.Err = err
	} else {
		settlement.Score = &result
	}

	// The claim must be released even when the caller's context is gone.
	if endErr := f.store.EndAttempt(context.WithoutCancel(ctx), state.AttemptID); endErr != nil {
		glog.Errorf("failed to end attempt %s after submission: %v", state.AttemptID, endErr)
	}

	f.notify(settlement)
	return settlement.Score, settlement.Err
}

func (f *Finisher) notify(settlement Settlement) {
	f.mu.Lock()
	hooks := make([]func(Settlement), len(f.hooks))
	copy(hooks, f.hooks)
	f.mu.Unlock()

	for _, hook := range hooks {
		hook(settlement)
	}
}
