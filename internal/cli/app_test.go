package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"quiz-runner/internal/attempt"
	"quiz-runner/internal/backend"
	"quiz-runner/internal/progress"
	"quiz-runner/internal/quiz"
)

type stubBackend struct {
	quizzes   map[string]quiz.Quiz
	scores    []quiz.ScoreResult
	libErr    error
	submitted [][]int
}

func (s *stubBackend) FetchQuiz(ctx context.Context, quizID string) (quiz.Quiz, error) {
	loaded, ok := s.quizzes[quizID]
	if !ok {
		return quiz.Quiz{}, quiz.ErrQuizNotFound
	}
	return loaded, nil
}

func (s *stubBackend) SubmitQuiz(ctx context.Context, quizID string, answers []int) (quiz.ScoreResult, error) {
	s.submitted = append(s.submitted, answers)
	correct := 0
	for idx, answer := range answers {
		if answer == s.quizzes[quizID].Questions[idx].CorrectIndex {
			correct++
		}
	}
	return quiz.ScoreResult{QuizID: quizID, CorrectAnswers: correct, TotalQuestions: len(answers), Score: float64(correct)}, nil
}

func (s *stubBackend) ListLibrary(ctx context.Context) ([]quiz.LibraryEntry, error) {
	if s.libErr != nil {
		return nil, s.libErr
	}
	var entries []quiz.LibraryEntry
	for _, item := range s.quizzes {
		entries = append(entries, quiz.LibraryEntry{QuizID: item.QuizID, Title: item.Title, TimeMinutes: item.TimeMinutes})
	}
	return entries, nil
}

func (s *stubBackend) ListScores(ctx context.Context) ([]quiz.ScoreResult, error) {
	return s.scores, nil
}

func newTestConfig(t *testing.T) (Config, *stubBackend, *testingclock.FakeClock) {
	t.Helper()

	fakeClock := testingclock.NewFakeClock(time.UnixMilli(1_700_000_000_000))
	store, err := progress.Open(context.Background(), progress.NewMemoryBackend(), progress.WithClock(fakeClock))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	stub := &stubBackend{quizzes: map[string]quiz.Quiz{
		"quiz-1": {
			QuizID:      "quiz-1",
			Title:       "Capitals",
			TimeMinutes: 2,
			Questions: []quiz.Question{
				quiz.BuildQuestion("q1", "Capital of France?", []string{"Paris", "Rome"}, 0),
				quiz.BuildQuestion("q2", "Capital of Italy?", []string{"Paris", "Rome"}, 1),
			},
		},
	}}

	finisher := attempt.NewFinisher(store, stub)
	return Config{
		Screen:    attempt.NewScreen(store, stub, finisher, attempt.PolicyReject),
		Store:     store,
		Catalog:   stub,
		ServerURL: "http://quiz.test",
	}, stub, fakeClock
}

func runScript(t *testing.T, cfg Config, lines ...string) string {
	t.Helper()

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	if err := Run(context.Background(), in, &out, cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out.String()
}

func TestPlayAnswerAndSubmit(t *testing.T) {
	cfg, stub, _ := newTestConfig(t)

	output := runScript(t, cfg,
		"play quiz-1",
		"answer a",
		"next",
		"answer z",
		"answer 2 b",
		"submit",
		"exit",
	)

	for _, want := range []string{
		"Capitals  [2:00 left]",
		"Q1/2: Capital of France?",
		"Q1 answered A.",
		"Q2/2: Capital of Italy?",
		"Invalid input. Please enter a letter A-B.",
		"Q2 answered B.",
		"Quiz submitted. Score: 2/2 (2)",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
	if len(stub.submitted) != 1 || fmt.Sprint(stub.submitted[0]) != "[0 1]" {
		t.Fatalf("submitted = %v", stub.submitted)
	}
	if cfg.Store.Read().Active() {
		t.Fatalf("attempt should be over")
	}
}

func TestResumeAfterRestart(t *testing.T) {
	cfg, _, fakeClock := newTestConfig(t)

	runScript(t, cfg, "play quiz-1", "answer b", "exit")
	fakeClock.Step(90 * time.Second)

	// A fresh screen over the same store stands in for a new process.
	cfg.Screen = attempt.NewScreen(cfg.Store, cfg.Catalog.(*stubBackend), attempt.NewFinisher(cfg.Store, cfg.Catalog.(*stubBackend)), attempt.PolicyReject)
	output := runScript(t, cfg, "resume", "status", "exit")

	for _, want := range []string{
		"Quiz quiz-1 is in progress with 0:30 left.",
		"* B. Rome",
		"quiz=quiz-1 phase=in_progress remaining=0:30 answered=1/2",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestCommandsWithoutAttempt(t *testing.T) {
	cfg, _, _ := newTestConfig(t)

	output := runScript(t, cfg, "status", "answer a", "submit", "resume", "play", "bogus")
	for _, want := range []string{
		"No quiz in progress.",
		"error: no quiz open; use 'play <quiz_id>' or 'resume'",
		"error: no quiz in progress",
		"usage: play <quiz_id>",
		"unknown command. type 'help' for usage.",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestPlayUnknownQuiz(t *testing.T) {
	cfg, _, _ := newTestConfig(t)

	output := runScript(t, cfg, "play nope")
	if !strings.Contains(output, "error: load quiz nope: quiz not found") {
		t.Fatalf("unexpected output:\n%s", output)
	}
}

func TestLibraryAndScores(t *testing.T) {
	cfg, stub, _ := newTestConfig(t)
	stub.scores = []quiz.ScoreResult{{QuizID: "quiz-1", QuizTitle: "Capitals", CorrectAnswers: 1, TotalQuestions: 2, Score: 50}}

	output := runScript(t, cfg, "library", "scores")
	for _, want := range []string{
		"1. quiz-1 Capitals (2 min)",
		"1. Capitals 1/2 (50)",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestLibraryReportsUnavailableBackend(t *testing.T) {
	cfg, stub, _ := newTestConfig(t)
	stub.libErr = fmt.Errorf("%w: dial tcp", backend.ErrServiceUnavailable)

	output := runScript(t, cfg, "library")
	if !strings.Contains(output, "error: quiz backend unavailable at http://quiz.test") {
		t.Fatalf("unexpected output:\n%s", output)
	}
}

func TestSettlementPrinterReportsTimeouts(t *testing.T) {
	var out bytes.Buffer
	printer := SettlementPrinter(&out)

	printer(attempt.Settlement{QuizID: "quiz-1", Reason: attempt.ReasonManual})
	if out.Len() != 0 {
		t.Fatalf("manual submissions are reported by the prompt, got %q", out.String())
	}

	printer(attempt.Settlement{QuizID: "quiz-1", Reason: attempt.ReasonTimeout, Err: errors.New("backend down")})
	if !strings.Contains(out.String(), "Time is up for quiz quiz-1.") || !strings.Contains(out.String(), "Submission failed: backend down") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := map[int]string{0: "0:00", 5: "0:05", 65: "1:05", 600: "10:00", -3: "0:00"}
	for seconds, want := range tests {
		if got := formatRemaining(seconds); got != want {
			t.Fatalf("formatRemaining(%d) = %q, want %q", seconds, got, want)
		}
	}
}
