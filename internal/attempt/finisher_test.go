package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"quiz-runner/internal/progress"
	"quiz-runner/internal/quiz"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []submission
	err     error
	release chan struct{}
	entered chan struct{}
}

type submission struct {
	QuizID  string
	Answers []int
}

func (f *fakeSubmitter) SubmitQuiz(ctx context.Context, quizID string, answers []int) (quiz.ScoreResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, submission{QuizID: quizID, Answers: answers})
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return quiz.ScoreResult{}, f.err
	}
	return quiz.ScoreResult{ScoreID: "score-1", QuizID: quizID, TotalQuestions: len(answers)}, nil
}

func (f *fakeSubmitter) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.calls...)
}

func newTestStore(t *testing.T) (*progress.Store, *testingclock.FakeClock) {
	t.Helper()

	fakeClock := testingclock.NewFakeClock(time.UnixMilli(1_700_000_000_000))
	store, err := progress.Open(context.Background(), progress.NewMemoryBackend(), progress.WithClock(fakeClock))
	require.NoError(t, err)
	return store, fakeClock
}

func startAttempt(t *testing.T, store *progress.Store, quizID string, questions int) progress.State {
	t.Helper()

	ctx := context.Background()
	state, err := store.Start(ctx, quizID, 60)
	require.NoError(t, err)
	require.NoError(t, store.InitAnswers(ctx, questions))
	return state
}

func TestFinishSubmitsAndEndsAttempt(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	submitter := &fakeSubmitter{}
	finisher := NewFinisher(store, submitter)

	var settled []Settlement
	finisher.OnSettled(func(s Settlement) { settled = append(settled, s) })

	state := startAttempt(t, store, "quiz-1", 3)
	require.NoError(t, store.SetAnswer(ctx, 2, 1))

	result, err := finisher.Finish(ctx, state.AttemptID, ReasonManual)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "score-1", result.ScoreID)

	assert.Equal(t, []submission{{QuizID: "quiz-1", Answers: []int{-1, -1, 1}}}, submitter.submissions())
	assert.False(t, store.Read().Active())
	assert.Empty(t, store.Answers().Answers)

	require.Len(t, settled, 1)
	assert.Equal(t, state.AttemptID, settled[0].AttemptID)
	assert.Equal(t, ReasonManual, settled[0].Reason)
	assert.NoError(t, settled[0].Err)
}

func TestFinishEndsAttemptWhenSubmissionFails(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	submitErr := errors.New("backend down")
	finisher := NewFinisher(store, &fakeSubmitter{err: submitErr})

	var settled Settlement
	finisher.OnSettled(func(s Settlement) { settled = s })

	state := startAttempt(t, store, "quiz-1", 1)
	result, err := finisher.Finish(ctx, state.AttemptID, ReasonTimeout)
	require.ErrorIs(t, err, submitErr)
	assert.Nil(t, result)

	assert.False(t, store.Read().Active(), "a failed submission must not leave the attempt running")
	assert.ErrorIs(t, settled.Err, submitErr)
	assert.Equal(t, ReasonTimeout, settled.Reason)
}

func TestFinishWithoutAttemptDoesNothing(t *testing.T) {
	store, _ := newTestStore(t)
	submitter := &fakeSubmitter{}
	finisher := NewFinisher(store, submitter)

	_, err := finisher.Finish(context.Background(), uuid.Nil, ReasonManual)
	require.ErrorIs(t, err, progress.ErrNoActiveAttempt)
	assert.Empty(t, submitter.submissions())
}

func TestFinishIgnoresStaleAttemptID(t *testing.T) {
	store, _ := newTestStore(t)
	submitter := &fakeSubmitter{}
	finisher := NewFinisher(store, submitter)

	startAttempt(t, store, "quiz-1", 1)
	_, err := finisher.Finish(context.Background(), uuid.New(), ReasonTimeout)
	require.ErrorIs(t, err, progress.ErrNoActiveAttempt)
	assert.Empty(t, submitter.submissions())
	assert.True(t, store.Read().InProgress())
}

func TestConcurrentFinishSubmitsOnce(t *testing.T) {
	store, _ := newTestStore(t)
	submitter := &fakeSubmitter{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	finisher := NewFinisher(store, submitter)
	state := startAttempt(t, store, "quiz-1", 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for idx, reason := range []Reason{ReasonManual, ReasonTimeout} {
		wg.Add(1)
		go func(idx int, reason Reason) {
			defer wg.Done()
			_, errs[idx] = finisher.Finish(context.Background(), state.AttemptID, reason)
		}(idx, reason)
	}

	<-submitter.entered
	close(submitter.release)
	wg.Wait()

	assert.Len(t, submitter.submissions(), 1)
	rejected := 0
	for _, err := range errs {
		if errors.Is(err, progress.ErrNoActiveAttempt) {
			rejected++
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 1, rejected)
	assert.False(t, store.Read().Active())
}

func TestSettledFinisherDoesNotEndNewerAttempt(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	submitter := &fakeSubmitter{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	finisher := NewFinisher(store, submitter)
	first := startAttempt(t, store, "quiz-1", 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = finisher.Finish(ctx, first.AttemptID, ReasonTimeout)
	}()
	<-submitter.entered

	// Starting is refused while the first attempt is being submitted.
	_, err := store.Start(ctx, "quiz-2", 60)
	require.ErrorIs(t, err, progress.ErrSubmissionPending)

	close(submitter.release)
	<-done

	second := startAttempt(t, store, "quiz-2", 1)
	require.NoError(t, store.EndAttempt(ctx, first.AttemptID))
	assert.Equal(t, second.AttemptID, store.Read().AttemptID)
}
