package localapi

import (
	"quiz-runner/internal/attempt"
	"quiz-runner/internal/quiz"
)

type openAttemptRequest struct {
	QuizID string `json:"quiz_id"`
}

type answerRequest struct {
	Option *int `json:"option"`
}

type currentRequest struct {
	Index *int `json:"index"`
}

type attemptResponse struct {
	attempt.View
}

type currentResponse struct {
	Current int `json:"current_question"`
}

type submitResponse struct {
	Score *quiz.ScoreResult `json:"score"`
}

type healthResponse struct {
	Status string `json:"status"`
	Phase  string `json:"phase"`
}

type errorResponse struct {
	Error        string `json:"error"`
	ActiveQuizID string `json:"active_quiz_id,omitempty"`
}
