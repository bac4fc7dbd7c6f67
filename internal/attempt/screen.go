package attempt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"quiz-runner/internal/progress"
	"quiz-runner/internal/quiz"
)

// Policy decides what Open does when a different quiz is already in
// progress.
type Policy string

const (
	PolicyReject  Policy = "reject"
	PolicyReplace Policy = "replace"
)

func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyReplace:
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", value)
	}
}

var ErrNoQuizLoaded = errors.New("no quiz loaded")

type ConflictError struct {
	ActiveQuizID    string
	RequestedQuizID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("quiz %s is already in progress; submit it before starting %s", e.ActiveQuizID, e.RequestedQuizID)
}

type QuizFetcher interface {
	FetchQuiz(ctx context.Context, quizID string) (quiz.Quiz, error)
}

// View is a render-ready snapshot of the attempt. The answer key is never
// part of it.
type View struct {
	AttemptID uuid.UUID            `json:"attempt_id"`
	QuizID    string               `json:"quiz_id"`
	Title     string               `json:"title"`
	Phase     string               `json:"phase"`
	Remaining int                  `json:"remaining_seconds"`
	Current   int                  `json:"current_question"`
	Total     int                  `json:"question_count"`
	Answers   []int                `json:"answers"`
	Question  *quiz.PublicQuestion `json:"question,omitempty"`
}

// Screen is the attempt UI's view of the progress store. It may be created
// and dropped at any time; the attempt lives in the store.
type Screen struct {
	store    *progress.Store
	fetcher  QuizFetcher
	finisher *Finisher
	policy   Policy

	mu        sync.Mutex
	attemptID uuid.UUID
	quiz      quiz.Quiz
}

func NewScreen(store *progress.Store, fetcher QuizFetcher, finisher *Finisher, policy Policy) *Screen {
	if policy == "" {
		policy = PolicyReject
	}
	return &Screen{
		store:    store,
		fetcher:  fetcher,
		finisher: finisher,
		policy:   policy,
	}
}

// Open mounts the screen on quizID. An attempt already in progress for the
// same quiz is resumed as is; otherwise a new attempt is started once the
// quiz has been fetched.
func (s *Screen) Open(ctx context.Context, quizID string) (View, error) {
	quizID = strings.TrimSpace(quizID)
	if quizID == "" {
		return View{}, progress.ErrInvalidQuizID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.store.Read()
	switch {
	case state.Phase == progress.PhaseSubmitting:
		return View{}, progress.ErrSubmissionPending
	case state.InProgress() && state.QuizID == quizID:
		return s.resumeLocked(ctx, state)
	case state.InProgress():
		if s.policy != PolicyReplace {
			return View{}, &ConflictError{ActiveQuizID: state.QuizID, RequestedQuizID: quizID}
		}
		return s.startLocked(ctx, quizID, &state)
	}

	return s.startLocked(ctx, quizID, nil)
}

// Resume mounts the screen on whatever attempt is in progress.
func (s *Screen) Resume(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.store.Read()
	if !state.InProgress() {
		return View{}, progress.ErrNoActiveAttempt
	}
	return s.resumeLocked(ctx, state)
}

func (s *Screen) resumeLocked(ctx context.Context, state progress.State) (View, error) {
	loaded, err := s.fetcher.FetchQuiz(ctx, state.QuizID)
	if err != nil {
		return View{}, fmt.Errorf("load quiz %s: %w", state.QuizID, err)
	}
	if len(loaded.Questions) == 0 {
		return View{}, quiz.ErrNoQuestions
	}

	if len(s.store.Answers().Answers) != len(loaded.Questions) {
		glog.Warningf("answer buffer for quiz %s does not match %d questions, resizing", state.QuizID, len(loaded.Questions))
		if err := s.store.ResizeAnswers(ctx, len(loaded.Questions)); err != nil {
			return View{}, err
		}
	}

	s.attemptID = state.AttemptID
	s.quiz = loaded
	glog.Infof("resumed quiz %s with %ds remaining", state.QuizID, s.store.RemainingSeconds(s.store.Now()))
	return s.viewLocked()
}

// startLocked begins a fresh attempt. abandon, when set, is ended without
// submitting, but only after the new quiz has loaded.
func (s *Screen) startLocked(ctx context.Context, quizID string, abandon *progress.State) (View, error) {
	loaded, err := s.fetcher.FetchQuiz(ctx, quizID)
	if err != nil {
		return View{}, fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	if len(loaded.Questions) == 0 {
		glog.Errorf("quiz %s has no questions, not starting", quizID)
		return View{}, quiz.ErrNoQuestions
	}
	if loaded.QuizID == "" {
		loaded.QuizID = quizID
	}

	if abandon != nil {
		glog.Warningf("abandoning attempt %s for quiz %s to start %s", abandon.AttemptID, abandon.QuizID, quizID)
		if err := s.store.EndAttempt(ctx, abandon.AttemptID); err != nil {
			return View{}, err
		}
	}

	state, err := s.store.StartWithAnswers(ctx, quizID, loaded.AllottedSeconds(), len(loaded.Questions))
	if err != nil {
		return View{}, err
	}

	s.attemptID = state.AttemptID
	s.quiz = loaded
	return s.viewLocked()
}

// View reports the mounted attempt.
func (s *Screen) View() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Screen) viewLocked() (View, error) {
	if err := s.checkMountedLocked(); err != nil {
		return View{}, err
	}

	state := s.store.Read()
	buf := s.store.Answers()
	view := View{
		AttemptID: state.AttemptID,
		QuizID:    state.QuizID,
		Title:     s.quiz.Title,
		Phase:     state.Phase.String(),
		Remaining: s.store.RemainingSeconds(s.store.Now()),
		Current:   buf.Current,
		Total:     len(s.quiz.Questions),
		Answers:   buf.Answers,
	}
	if buf.Current >= 0 && buf.Current < len(s.quiz.Questions) {
		question := s.quiz.Questions[buf.Current].PublicQuestion
		view.Question = &question
	}
	return view, nil
}

// Question returns the question the user is looking at.
func (s *Screen) Question() (int, quiz.PublicQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMountedLocked(); err != nil {
		return 0, quiz.PublicQuestion{}, err
	}
	current := s.store.Answers().Current
	if current < 0 || current >= len(s.quiz.Questions) {
		return 0, quiz.PublicQuestion{}, progress.ErrQuestionOutOfRange
	}
	return current, s.quiz.Questions[current].PublicQuestion, nil
}

// Answer records option for question, replacing any earlier choice.
func (s *Screen) Answer(ctx context.Context, question, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMountedLocked(); err != nil {
		return err
	}
	if question < 0 || question >= len(s.quiz.Questions) {
		return progress.ErrQuestionOutOfRange
	}
	if option < quiz.Unanswered || option >= len(s.quiz.Questions[question].Options) {
		return quiz.ErrInvalidAnswer
	}
	return s.store.SetAnswer(ctx, question, option)
}

// Next moves forward one question and stops at the last one.
func (s *Screen) Next(ctx context.Context) (int, error) {
	return s.move(ctx, 1)
}

// Prev moves back one question and stops at the first one.
func (s *Screen) Prev(ctx context.Context) (int, error) {
	return s.move(ctx, -1)
}

func (s *Screen) Goto(ctx context.Context, index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMountedLocked(); err != nil {
		return 0, err
	}
	if index < 0 || index >= len(s.quiz.Questions) {
		return 0, progress.ErrQuestionOutOfRange
	}
	if err := s.store.SetCurrent(ctx, index); err != nil {
		return 0, err
	}
	return index, nil
}

func (s *Screen) move(ctx context.Context, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMountedLocked(); err != nil {
		return 0, err
	}

	total := len(s.quiz.Questions)
	current := s.store.Answers().Current
	next := current + delta
	if next < 0 {
		next = 0
	}
	if next >= total {
		next = total - 1
	}
	if next == current {
		return current, nil
	}
	if err := s.store.SetCurrent(ctx, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Remaining is the whole seconds left on the active attempt.
func (s *Screen) Remaining() int {
	return s.store.RemainingSeconds(s.store.Now())
}

// Submit hands the mounted attempt to the finisher. If the watchdog got
// there first this returns progress.ErrNoActiveAttempt.
func (s *Screen) Submit(ctx context.Context) (*quiz.ScoreResult, error) {
	s.mu.Lock()
	attemptID := s.attemptID
	s.mu.Unlock()

	if attemptID == uuid.Nil {
		return nil, ErrNoQuizLoaded
	}
	result, err := s.finisher.Finish(ctx, attemptID, ReasonManual)

	s.mu.Lock()
	if s.attemptID == attemptID {
		s.attemptID = uuid.Nil
		s.quiz = quiz.Quiz{}
	}
	s.mu.Unlock()
	return result, err
}

// checkMountedLocked fails when nothing is loaded or when the attempt the
// screen was opened on has since ended or been replaced.
func (s *Screen) checkMountedLocked() error {
	if s.attemptID == uuid.Nil {
		return ErrNoQuizLoaded
	}
	state := s.store.Read()
	if !state.Active() || state.AttemptID != s.attemptID {
		return progress.ErrNoActiveAttempt
	}
	return nil
}
