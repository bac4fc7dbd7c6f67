package progress

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"quiz-runner/internal/quiz"
)

const DefaultKeyPrefix = "quiz_progress."

var (
	ErrInvalidAllottedTime  = errors.New("allotted time must be positive")
	ErrInvalidQuizID        = errors.New("quiz id is required")
	ErrNoActiveAttempt      = errors.New("no quiz attempt in progress")
	ErrSubmissionPending    = errors.New("quiz submission is pending")
	ErrQuestionOutOfRange   = errors.New("question index out of range")
	ErrInvalidQuestionCount = errors.New("question count must be positive")
)

type keySet struct {
	inProgress      string
	quizID          string
	startedAtMs     string
	allottedSeconds string
	attemptID       string
	answers         string
	currentQuestion string
}

func newKeySet(prefix string) keySet {
	return keySet{
		inProgress:      prefix + "in_progress",
		quizID:          prefix + "quiz_id",
		startedAtMs:     prefix + "started_at_ms",
		allottedSeconds: prefix + "allotted_seconds",
		attemptID:       prefix + "attempt_id",
		answers:         prefix + "answers",
		currentQuestion: prefix + "current_question",
	}
}

func (k keySet) all() []string {
	return []string{k.inProgress, k.quizID, k.startedAtMs, k.allottedSeconds, k.attemptID, k.answers, k.currentQuestion}
}

func (k keySet) attemptKeys() []string {
	return []string{k.quizID, k.startedAtMs, k.allottedSeconds, k.attemptID, k.answers, k.currentQuestion}
}

type Option func(*Store)

func WithClock(c clock.PassiveClock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.keys = newKeySet(prefix)
		}
	}
}

// WithDefaultSeconds sets what RemainingSeconds reports while idle.
func WithDefaultSeconds(seconds int) Option {
	return func(s *Store) {
		s.defaultSeconds = seconds
	}
}

// Store is the single source of truth for whether an attempt is active.
// One Store is created at process start and shared by the watchdog and
// every screen.
type Store struct {
	backend        Backend
	clock          clock.PassiveClock
	keys           keySet
	defaultSeconds int

	mu       sync.Mutex
	state    State
	answers  AnswerBuffer
	watchers map[int]chan struct{}
	nextID   int
}

// Open rehydrates the store from backend.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend:  backend,
		clock:    clock.RealClock{},
		keys:     newKeySet(DefaultKeyPrefix),
		watchers: make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	values, err := s.backend.Get(ctx, s.keys.all()...)
	if err != nil {
		return errors.Wrap(err, "load attempt state")
	}

	if values[s.keys.inProgress] != "true" {
		if hasAny(values, s.keys.attemptKeys()) {
			glog.V(2).Infof("dropping stale attempt entries without an in-progress flag")
			return s.clearPersisted(ctx)
		}
		return nil
	}

	state := State{
		Phase:  PhaseInProgress,
		QuizID: values[s.keys.quizID],
	}
	if ms, err := strconv.ParseInt(values[s.keys.startedAtMs], 10, 64); err == nil && ms > 0 {
		state.StartedAt = time.UnixMilli(ms)
	}
	if seconds, err := strconv.Atoi(values[s.keys.allottedSeconds]); err == nil {
		state.AllottedSeconds = seconds
	}
	if id, err := uuid.Parse(values[s.keys.attemptID]); err == nil {
		state.AttemptID = id
	} else {
		state.AttemptID = uuid.New()
	}

	if !state.valid() {
		glog.Warningf("persisted attempt for quiz %q is incomplete, clearing it", state.QuizID)
		return s.clearPersisted(ctx)
	}

	var answers []int
	if raw := values[s.keys.answers]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &answers); err != nil {
			glog.Warningf("persisted answers for quiz %s are unreadable, starting empty: %v", state.QuizID, err)
			answers = nil
		}
	}
	current, _ := strconv.Atoi(values[s.keys.currentQuestion])

	s.state = state
	s.answers = AnswerBuffer{Answers: answers, Current: clampIndex(current, len(answers))}
	glog.Infof("resumed attempt %s for quiz %s (%ds allotted, started %s)",
		state.AttemptID, state.QuizID, state.AllottedSeconds, state.StartedAt.UTC().Format(time.RFC3339))
	return nil
}

// Start records a new attempt starting now. A non-positive budget is
// rejected without touching the current state.
func (s *Store) Start(ctx context.Context, quizID string, allottedSeconds int) (State, error) {
	return s.start(ctx, quizID, allottedSeconds, 0)
}

// StartWithAnswers starts an attempt and its unanswered buffer of
// questionCount entries in one backend write, so a failure never leaves a
// running attempt without answers.
func (s *Store) StartWithAnswers(ctx context.Context, quizID string, allottedSeconds, questionCount int) (State, error) {
	if questionCount <= 0 {
		return State{}, ErrInvalidQuestionCount
	}
	return s.start(ctx, quizID, allottedSeconds, questionCount)
}

func (s *Store) start(ctx context.Context, quizID string, allottedSeconds, questionCount int) (State, error) {
	if allottedSeconds <= 0 {
		glog.Errorf("cannot start quiz %q with zero or negative total time (%d)", quizID, allottedSeconds)
		return State{}, ErrInvalidAllottedTime
	}
	if quizID == "" {
		glog.Errorf("cannot start a quiz without a quiz id")
		return State{}, ErrInvalidQuizID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase == PhaseSubmitting {
		return State{}, ErrSubmissionPending
	}
	if s.state.Phase == PhaseInProgress {
		glog.Warningf("replacing attempt %s for quiz %s", s.state.AttemptID, s.state.QuizID)
	}

	// Millisecond precision so the in-memory value matches what a reload reads back.
	started := time.UnixMilli(s.clock.Now().UnixMilli())
	next := State{
		Phase:           PhaseInProgress,
		AttemptID:       uuid.New(),
		QuizID:          quizID,
		StartedAt:       started,
		AllottedSeconds: allottedSeconds,
	}
	buffer := AnswerBuffer{}
	if questionCount > 0 {
		buffer.Answers = unansweredBuffer(questionCount)
	}
	encoded, err := json.Marshal(buffer.Answers)
	if err != nil {
		return State{}, errors.Wrap(err, "encode answers")
	}
	if buffer.Answers == nil {
		encoded = []byte("[]")
	}

	err = s.backend.Apply(ctx, Mutation{
		Set: map[string]string{
			s.keys.inProgress:      "true",
			s.keys.quizID:          next.QuizID,
			s.keys.startedAtMs:     strconv.FormatInt(started.UnixMilli(), 10),
			s.keys.allottedSeconds: strconv.Itoa(allottedSeconds),
			s.keys.attemptID:       next.AttemptID.String(),
			s.keys.answers:         string(encoded),
			s.keys.currentQuestion: "0",
		},
	})
	if err != nil {
		return State{}, errors.Wrap(err, "persist attempt start")
	}

	s.state = next
	s.answers = buffer
	s.notifyLocked()

	glog.Infof("started attempt %s for quiz %s with %ds", next.AttemptID, quizID, allottedSeconds)
	return next, nil
}

// End clears whatever attempt is recorded. Ending when idle is a no-op.
func (s *Store) End(ctx context.Context) error {
	return s.EndAttempt(ctx, uuid.Nil)
}

// EndAttempt clears the attempt only if attemptID is still the active one
// (uuid.Nil matches any). The answer buffer is cleared in the same write.
func (s *Store) EndAttempt(ctx context.Context, attemptID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase == PhaseIdle {
		return nil
	}
	if attemptID != uuid.Nil && attemptID != s.state.AttemptID {
		glog.V(2).Infof("ignoring end for attempt %s, active attempt is %s", attemptID, s.state.AttemptID)
		return nil
	}

	ended := s.state
	err := s.clearPersisted(ctx)

	// Memory is cleared even if the write failed so the countdown cannot get stuck.
	s.state = State{}
	s.answers = AnswerBuffer{}
	s.notifyLocked()

	glog.Infof("ended attempt %s for quiz %s", ended.AttemptID, ended.QuizID)
	return err
}

func (s *Store) clearPersisted(ctx context.Context) error {
	err := s.backend.Apply(ctx, Mutation{
		Set:    map[string]string{s.keys.inProgress: "false"},
		Delete: s.keys.attemptKeys(),
	})
	if err != nil {
		glog.Errorf("failed to clear persisted attempt: %v", err)
		return errors.Wrap(err, "clear attempt state")
	}
	return nil
}

func (s *Store) Read() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Answers() AnswerBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.clone()
}

// RemainingSeconds is Remaining for the current state.
func (s *Store) RemainingSeconds(now time.Time) int {
	return Remaining(s.Read(), now, s.defaultSeconds)
}

// Now reads the store's clock.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// BeginSubmit moves the attempt from in progress to submitting and returns
// what should be submitted. Only the first caller for an attempt gets true;
// later callers observe that the attempt is no longer in progress.
func (s *Store) BeginSubmit(attemptID uuid.UUID) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhaseInProgress {
		return Snapshot{}, false
	}
	if attemptID != uuid.Nil && attemptID != s.state.AttemptID {
		return Snapshot{}, false
	}

	s.state.Phase = PhaseSubmitting
	s.notifyLocked()
	return Snapshot{State: s.state, Answers: s.answers.clone()}, true
}

// InitAnswers resets the buffer to count unanswered questions.
func (s *Store) InitAnswers(ctx context.Context, count int) error {
	if count <= 0 {
		return ErrInvalidQuestionCount
	}

	answers := unansweredBuffer(count)
	return s.updateAnswers(ctx, func(AnswerBuffer) (AnswerBuffer, error) {
		return AnswerBuffer{Answers: answers}, nil
	})
}

func unansweredBuffer(count int) []int {
	answers := make([]int, count)
	for idx := range answers {
		answers[idx] = quiz.Unanswered
	}
	return answers
}

// ResizeAnswers keeps existing answers and pads or truncates to count.
func (s *Store) ResizeAnswers(ctx context.Context, count int) error {
	if count <= 0 {
		return ErrInvalidQuestionCount
	}

	return s.updateAnswers(ctx, func(buf AnswerBuffer) (AnswerBuffer, error) {
		if len(buf.Answers) == count {
			return buf, nil
		}
		resized := make([]int, count)
		for idx := range resized {
			resized[idx] = quiz.Unanswered
			if idx < len(buf.Answers) {
				resized[idx] = buf.Answers[idx]
			}
		}
		return AnswerBuffer{Answers: resized, Current: clampIndex(buf.Current, count)}, nil
	})
}

// SetAnswer overwrites the answer for question. option may be
// quiz.Unanswered to clear it.
func (s *Store) SetAnswer(ctx context.Context, question, option int) error {
	if option < quiz.Unanswered {
		return quiz.ErrInvalidAnswer
	}

	return s.updateAnswers(ctx, func(buf AnswerBuffer) (AnswerBuffer, error) {
		if question < 0 || question >= len(buf.Answers) {
			return buf, ErrQuestionOutOfRange
		}
		buf.Answers[question] = option
		return buf, nil
	})
}

func (s *Store) SetCurrent(ctx context.Context, index int) error {
	return s.updateAnswers(ctx, func(buf AnswerBuffer) (AnswerBuffer, error) {
		if index < 0 || index >= len(buf.Answers) {
			return buf, ErrQuestionOutOfRange
		}
		buf.Current = index
		return buf, nil
	})
}

func (s *Store) updateAnswers(ctx context.Context, update func(AnswerBuffer) (AnswerBuffer, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhaseInProgress {
		return ErrNoActiveAttempt
	}

	next, err := update(s.answers.clone())
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(next.Answers)
	if err != nil {
		return errors.Wrap(err, "encode answers")
	}
	err = s.backend.Apply(ctx, Mutation{
		Set: map[string]string{
			s.keys.answers:         string(encoded),
			s.keys.currentQuestion: strconv.Itoa(next.Current),
		},
	})
	if err != nil {
		return errors.Wrap(err, "persist answers")
	}

	s.answers = next
	return nil
}

// Watch returns a channel that receives a value after every lifecycle
// change. Notifications coalesce; receivers should re-read the state.
func (s *Store) Watch() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Store) notifyLocked() {
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func hasAny(values map[string]string, keys []string) bool {
	for _, key := range keys {
		if _, ok := values[key]; ok {
			return true
		}
	}
	return false
}

func clampIndex(index, length int) int {
	if length == 0 || index < 0 {
		return 0
	}
	if index >= length {
		return length - 1
	}
	return index
}
