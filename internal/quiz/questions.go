package quiz

import (
	"errors"
	"html"
	"strings"
)

// Unanswered marks a question the user has not picked an option for yet.
const Unanswered = -1

var (
	ErrQuizNotFound  = errors.New("quiz not found")
	ErrNoQuestions   = errors.New("quiz has no questions")
	ErrInvalidAnswer = errors.New("invalid answer")
)

type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// PublicQuestion is what a screen is allowed to render during an attempt.
type PublicQuestion struct {
	QuestionID string   `json:"question_id"`
	Question   string   `json:"question"`
	Options    []Option `json:"options"`
}

type Question struct {
	PublicQuestion
	CorrectIndex int
}

type Quiz struct {
	QuizID      string
	Title       string
	Description string
	// TimeMinutes is the attempt budget configured by the quiz author.
	TimeMinutes int
	Questions   []Question
}

// AllottedSeconds is the attempt budget handed to the progress store.
func (q Quiz) AllottedSeconds() int {
	return q.TimeMinutes * 60
}

type LibraryEntry struct {
	QuizID      string
	Title       string
	Description string
	TimeMinutes int
}

type ScoreResult struct {
	ScoreID        string  `json:"score_id"`
	QuizID         string  `json:"quiz_id"`
	QuizTitle      string  `json:"quiz_title,omitempty"`
	Score          float64 `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
}

// BuildQuestion turns a prompt and its option texts into a Question with
// lettered options. HTML entities from the backend are unescaped.
func BuildQuestion(id, prompt string, options []string, correctIndex int) Question {
	built := make([]Option, len(options))
	for idx, text := range options {
		built[idx] = Option{
			Letter: string(rune('A' + idx)),
			Text:   html.UnescapeString(text),
		}
	}

	return Question{
		PublicQuestion: PublicQuestion{
			QuestionID: id,
			Question:   html.UnescapeString(prompt),
			Options:    built,
		},
		CorrectIndex: correctIndex,
	}
}

// LetterIndex maps an answer letter such as "b" to its option index.
func LetterIndex(answer string, optionCount int) (int, bool) {
	letter := normalizeLetter(answer)
	if letter == "" {
		return Unanswered, false
	}

	index := int(letter[0] - 'A')
	if index < 0 || index >= optionCount {
		return Unanswered, false
	}
	return index, true
}

// IndexLetter is the inverse of LetterIndex. Unanswered maps to "-".
func IndexLetter(index int) string {
	if index < 0 || index > 'Z'-'A' {
		return "-"
	}
	return string(rune('A' + index))
}

func normalizeLetter(answer string) string {
	letter := strings.ToUpper(strings.TrimSpace(answer))
	if len(letter) != 1 {
		return ""
	}
	return letter
}
