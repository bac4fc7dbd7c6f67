package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"quiz-runner/internal/attempt"
	"quiz-runner/internal/backend"
	"quiz-runner/internal/progress"
)

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  help")
	fmt.Fprintln(out, "  library")
	fmt.Fprintln(out, "  scores")
	fmt.Fprintln(out, "  play <quiz_id>")
	fmt.Fprintln(out, "  resume")
	fmt.Fprintln(out, "  status")
	fmt.Fprintln(out, "  answer [question] <letter|->")
	fmt.Fprintln(out, "  next | prev | goto <question>")
	fmt.Fprintln(out, "  submit")
	fmt.Fprintln(out, "  exit")
}

func parseQuestionNumber(value string) (int, error) {
	number, err := strconv.Atoi(value)
	if err != nil || number <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return number, nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func formatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func describeClientError(err error, serverURL string) error {
	if errors.Is(err, backend.ErrServiceUnavailable) {
		return fmt.Errorf("quiz backend unavailable at %s", serverURL)
	}
	return err
}

func describeAttemptError(err error, serverURL string) error {
	var conflict *attempt.ConflictError
	switch {
	case errors.As(err, &conflict):
		return fmt.Errorf("quiz %s is still in progress; 'resume' it or 'submit' it first", conflict.ActiveQuizID)
	case errors.Is(err, attempt.ErrNoQuizLoaded):
		return errors.New("no quiz open; use 'play <quiz_id>' or 'resume'")
	case errors.Is(err, progress.ErrNoActiveAttempt):
		return errors.New("no quiz in progress")
	}
	return describeClientError(err, serverURL)
}

// LockedWriter serialises writes from the prompt and from settlement
// callbacks that run on the watchdog goroutine.
type LockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewLockedWriter(w io.Writer) *LockedWriter {
	return &LockedWriter{w: w}
}

func (l *LockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
