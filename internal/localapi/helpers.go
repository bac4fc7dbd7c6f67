package localapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"quiz-runner/internal/attempt"
	"quiz-runner/internal/backend"
	"quiz-runner/internal/progress"
	"quiz-runner/internal/quiz"
)

func writeAttemptError(w http.ResponseWriter, err error) {
	var (
		conflict *attempt.ConflictError
		apiErr   *backend.APIError
	)

	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: conflict.Error(), ActiveQuizID: conflict.ActiveQuizID})
	case errors.Is(err, progress.ErrSubmissionPending):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "quiz submission is pending"})
	case errors.Is(err, progress.ErrNoActiveAttempt), errors.Is(err, attempt.ErrNoQuizLoaded):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no quiz attempt in progress"})
	case errors.Is(err, quiz.ErrQuizNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "quiz not found"})
	case errors.Is(err, progress.ErrQuestionOutOfRange),
		errors.Is(err, quiz.ErrInvalidAnswer),
		errors.Is(err, quiz.ErrNoQuestions),
		errors.Is(err, progress.ErrInvalidQuizID),
		errors.Is(err, progress.ErrInvalidAllottedTime):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, backend.ErrServiceUnavailable):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "quiz backend unavailable"})
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: apiErr.Error()})
	default:
		glog.Errorf("attempt request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "request failed"})
	}
}

func parseIndexParam(r *http.Request, key string) (int, error) {
	value := strings.TrimSpace(chi.URLParam(r, key))
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return parsed, nil
}

func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
