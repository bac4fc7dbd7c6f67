package progress

import (
	"time"

	"github.com/google/uuid"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInProgress
	// PhaseSubmitting is held by whichever path claimed the attempt for
	// submission. It is never persisted.
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "in_progress"
	case PhaseSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

// State is the process-wide record of the active attempt.
type State struct {
	Phase           Phase
	AttemptID       uuid.UUID
	QuizID          string
	StartedAt       time.Time
	AllottedSeconds int
}

// InProgress reports whether answers may still change and a submission can
// still be claimed.
func (s State) InProgress() bool {
	return s.Phase == PhaseInProgress
}

// Active reports whether an attempt is recorded at all, including one that
// is being submitted.
func (s State) Active() bool {
	return s.Phase != PhaseIdle
}

// Deadline is the wall-clock instant at which the attempt runs out of time.
func (s State) Deadline() time.Time {
	if !s.Active() {
		return time.Time{}
	}
	return s.StartedAt.Add(time.Duration(s.AllottedSeconds) * time.Second)
}

func (s State) valid() bool {
	return s.QuizID != "" && !s.StartedAt.IsZero() && s.AllottedSeconds > 0
}

// Remaining computes whole seconds left at now from the recorded start
// time. It never goes below zero. Without an active attempt it returns
// defaultSeconds.
func Remaining(state State, now time.Time, defaultSeconds int) int {
	if !state.Active() {
		return defaultSeconds
	}

	elapsed := now.Sub(state.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := state.AllottedSeconds - int(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AnswerBuffer holds the selected option per question and the question the
// user is looking at.
type AnswerBuffer struct {
	Answers []int
	Current int
}

func (b AnswerBuffer) clone() AnswerBuffer {
	answers := make([]int, len(b.Answers))
	copy(answers, b.Answers)
	return AnswerBuffer{Answers: answers, Current: b.Current}
}

// Answered counts questions that have a selected option.
func (b AnswerBuffer) Answered() int {
	count := 0
	for _, answer := range b.Answers {
		if answer >= 0 {
			count++
		}
	}
	return count
}

// Snapshot is what the submission path reads at the moment it claims the
// attempt.
type Snapshot struct {
	State   State
	Answers AnswerBuffer
}
