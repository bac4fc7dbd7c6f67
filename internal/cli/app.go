package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"quiz-runner/internal/attempt"
	"quiz-runner/internal/progress"
	"quiz-runner/internal/quiz"
)

type Catalog interface {
	ListLibrary(ctx context.Context) ([]quiz.LibraryEntry, error)
	ListScores(ctx context.Context) ([]quiz.ScoreResult, error)
}

type Config struct {
	Screen    *attempt.Screen
	Store     *progress.Store
	Catalog   Catalog
	ServerURL string
}

// Run is the interactive attempt screen. Leaving it does not stop the
// attempt; the watchdog keeps counting and submits on timeout.
func Run(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	if cfg.Screen == nil || cfg.Store == nil {
		return errors.New("screen and store are required")
	}

	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "quiz-runner\nserver=%s\n\n", cfg.ServerURL)
	if state := cfg.Store.Read(); state.InProgress() {
		fmt.Fprintf(out, "Quiz %s is in progress with %s left. Type 'resume' to continue.\n",
			state.QuizID, formatRemaining(cfg.Store.RemainingSeconds(cfg.Store.Now())))
	}
	printHelp(out)

	for {
		fmt.Fprint(out, "\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args := strings.Fields(line)
		command := strings.ToLower(args[0])

		switch command {
		case "help":
			printHelp(out)
		case "exit", "quit":
			return nil
		case "library":
			if err := runLibrary(ctx, out, cfg); err != nil {
				fmt.Fprintf(out, "error: %v\n", describeClientError(err, cfg.ServerURL))
			}
		case "scores":
			if err := runScores(ctx, out, cfg); err != nil {
				fmt.Fprintf(out, "error: %v\n", describeClientError(err, cfg.ServerURL))
			}
		case "play":
			if len(args) != 2 {
				fmt.Fprintln(out, "usage: play <quiz_id>")
				continue
			}
			view, err := cfg.Screen.Open(ctx, args[1])
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", describeAttemptError(err, cfg.ServerURL))
				continue
			}
			printView(out, view)
		case "resume":
			view, err := cfg.Screen.Resume(ctx)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", describeAttemptError(err, cfg.ServerURL))
				continue
			}
			printView(out, view)
		case "status":
			runStatus(out, cfg)
		case "answer":
			if err := runAnswer(ctx, out, cfg.Screen, args[1:]); err != nil {
				fmt.Fprintf(out, "error: %v\n", describeAttemptError(err, cfg.ServerURL))
			}
		case "next", "prev", "goto":
			if err := runNavigate(ctx, out, cfg.Screen, command, args[1:]); err != nil {
				fmt.Fprintf(out, "error: %v\n", describeAttemptError(err, cfg.ServerURL))
			}
		case "submit":
			result, err := cfg.Screen.Submit(ctx)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", describeAttemptError(err, cfg.ServerURL))
				continue
			}
			printScore(out, result)
		default:
			fmt.Fprintln(out, "unknown command. type 'help' for usage.")
		}
	}
}

func runLibrary(ctx context.Context, out io.Writer, cfg Config) error {
	if cfg.Catalog == nil {
		return errors.New("library is not available")
	}
	entries, err := cfg.Catalog.ListLibrary(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "Your library is empty.")
		return nil
	}

	fmt.Fprintln(out, "Library:")
	for idx, entry := range entries {
		fmt.Fprintf(out, "%d. %s %s (%d min)\n", idx+1, entry.QuizID, entry.Title, entry.TimeMinutes)
		if description := strings.TrimSpace(entry.Description); description != "" {
			fmt.Fprintf(out, "   %s\n", description)
		}
	}
	return nil
}

func runScores(ctx context.Context, out io.Writer, cfg Config) error {
	if cfg.Catalog == nil {
		return errors.New("scores are not available")
	}
	scores, err := cfg.Catalog.ListScores(ctx)
	if err != nil {
		return err
	}

	if len(scores) == 0 {
		fmt.Fprintln(out, "No scores yet.")
		return nil
	}

	fmt.Fprintln(out, "Scores:")
	for idx, score := range scores {
		name := score.QuizTitle
		if name == "" {
			name = score.QuizID
		}
		fmt.Fprintf(out, "%d. %s %d/%d (%s)\n", idx+1, name, score.CorrectAnswers, score.TotalQuestions, formatScore(score.Score))
	}
	return nil
}

func runStatus(out io.Writer, cfg Config) {
	state := cfg.Store.Read()
	if !state.Active() {
		fmt.Fprintln(out, "No quiz in progress.")
		return
	}

	buf := cfg.Store.Answers()
	fmt.Fprintf(out, "quiz=%s phase=%s remaining=%s answered=%d/%d\n",
		state.QuizID,
		state.Phase,
		formatRemaining(cfg.Store.RemainingSeconds(cfg.Store.Now())),
		buf.Answered(),
		len(buf.Answers),
	)
}

// runAnswer accepts "answer B" for the current question or "answer 3 B"
// for question 3.
func runAnswer(ctx context.Context, out io.Writer, screen *attempt.Screen, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintln(out, "usage: answer [question] <letter|->")
		return nil
	}

	index, question, err := screen.Question()
	if err != nil {
		return err
	}
	if len(args) == 2 {
		number, parseErr := parseQuestionNumber(args[0])
		if parseErr != nil {
			fmt.Fprintf(out, "invalid question number: %v\n", parseErr)
			return nil
		}
		if _, err := screen.Goto(ctx, number-1); err != nil {
			return err
		}
		if index, question, err = screen.Question(); err != nil {
			return err
		}
	}

	letter := args[len(args)-1]
	option := quiz.Unanswered
	if letter != "-" {
		var ok bool
		option, ok = quiz.LetterIndex(letter, len(question.Options))
		if !ok {
			fmt.Fprintf(out, "Invalid input. Please enter a letter A-%s.\n", quiz.IndexLetter(len(question.Options)-1))
			return nil
		}
	}

	if err := screen.Answer(ctx, index, option); err != nil {
		return err
	}
	if option == quiz.Unanswered {
		fmt.Fprintf(out, "Cleared answer for Q%d.\n", index+1)
	} else {
		fmt.Fprintf(out, "Q%d answered %s.\n", index+1, quiz.IndexLetter(option))
	}
	return nil
}

func runNavigate(ctx context.Context, out io.Writer, screen *attempt.Screen, command string, args []string) error {
	var err error
	switch command {
	case "next":
		_, err = screen.Next(ctx)
	case "prev":
		_, err = screen.Prev(ctx)
	case "goto":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: goto <question>")
			return nil
		}
		number, parseErr := parseQuestionNumber(args[0])
		if parseErr != nil {
			fmt.Fprintf(out, "invalid question number: %v\n", parseErr)
			return nil
		}
		_, err = screen.Goto(ctx, number-1)
	}
	if err != nil {
		return err
	}

	view, err := screen.View()
	if err != nil {
		return err
	}
	printView(out, view)
	return nil
}

func printView(out io.Writer, view attempt.View) {
	fmt.Fprintln(out)
	title := view.Title
	if title == "" {
		title = view.QuizID
	}
	fmt.Fprintf(out, "%s  [%s left]\n", title, formatRemaining(view.Remaining))
	if view.Question == nil {
		return
	}

	selected := quiz.Unanswered
	if view.Current < len(view.Answers) {
		selected = view.Answers[view.Current]
	}
	printQuestion(out, view.Current+1, view.Total, *view.Question, selected)
}

func printQuestion(out io.Writer, number, total int, question quiz.PublicQuestion, selected int) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Q%d/%d: %s\n\n", number, total, question.Question)
	for idx, option := range question.Options {
		marker := " "
		if idx == selected {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s. %s\n", marker, option.Letter, option.Text)
	}
}

func printScore(out io.Writer, result *quiz.ScoreResult) {
	if result == nil {
		fmt.Fprintln(out, "Quiz submitted.")
		return
	}
	fmt.Fprintf(out, "Quiz submitted. Score: %d/%d (%s)\n", result.CorrectAnswers, result.TotalQuestions, formatScore(result.Score))
}

// SettlementPrinter reports submissions the user did not trigger, such as
// a timeout while the prompt is idle.
func SettlementPrinter(out io.Writer) func(attempt.Settlement) {
	return func(settlement attempt.Settlement) {
		if settlement.Reason != attempt.ReasonTimeout {
			return
		}
		fmt.Fprintf(out, "\nTime is up for quiz %s.\n", settlement.QuizID)
		if settlement.Err != nil {
			fmt.Fprintf(out, "Submission failed: %v\n", settlement.Err)
			return
		}
		printScore(out, settlement.Score)
	}
}
