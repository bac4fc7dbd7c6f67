package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quiz-runner/internal/quiz"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestDoJSONReturnsServiceUnavailable(t *testing.T) {
	client := NewClient("http://example.test", &http.Client{
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("dial error")
		}),
	})

	err := client.doJSON(context.Background(), http.MethodGet, "/health", nil, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable wrapper, got %v", err)
	}
}

func TestDoJSONReturnsAPIErrorMessageFromBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(errorResponse{Message: "quiz already submitted"})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	err := client.doJSON(context.Background(), http.MethodGet, "/anything", nil, nil)
	if err == nil {
		t.Fatalf("expected API error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", apiErr.StatusCode, http.StatusBadRequest)
	}
	if apiErr.Message != "quiz already submitted" {
		t.Fatalf("message = %q, want %q", apiErr.Message, "quiz already submitted")
	}
}

func TestDoJSONFallsBackToStatusText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	err := client.doJSON(context.Background(), http.MethodGet, "/anything", nil, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.Message != "500 Internal Server Error" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestFetchQuizParsesLibraryQuiz(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/quizzes/library/quiz-123" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("authorization = %q", got)
		}

		_, _ = w.Write([]byte(`{"quiz":{"_id":"quiz-123","title":"Capitals","time":2,"questions":[
			{"_id":"q1","question":"Capital of France?","options":["Paris","Rome"],"correctOption":0},
			{"_id":"q2","question":"Tom &amp; Jerry?","options":["Cat","Mouse","Dog"],"correctOption":1}
		]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", server.Client(), WithAuthToken(" secret "))
	got, err := client.FetchQuiz(context.Background(), "quiz-123")
	if err != nil {
		t.Fatalf("FetchQuiz failed: %v", err)
	}
	if got.QuizID != "quiz-123" || got.Title != "Capitals" || got.TimeMinutes != 2 {
		t.Fatalf("unexpected quiz: %+v", got)
	}
	if got.AllottedSeconds() != 120 {
		t.Fatalf("allotted seconds = %d, want 120", got.AllottedSeconds())
	}
	if len(got.Questions) != 2 {
		t.Fatalf("question count = %d, want 2", len(got.Questions))
	}
	second := got.Questions[1]
	if second.Question != "Tom & Jerry?" || second.CorrectIndex != 1 || len(second.Options) != 3 {
		t.Fatalf("unexpected second question: %+v", second)
	}
	if second.Options[2].Letter != "C" || second.Options[2].Text != "Dog" {
		t.Fatalf("unexpected option: %+v", second.Options[2])
	}
}

func TestFetchQuizMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(errorResponse{Message: "Quiz not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	_, err := client.FetchQuiz(context.Background(), "missing")
	if !errors.Is(err, quiz.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestSubmitQuizSendsAnswers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/scores/submit" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}

		var request submitRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if request.QuizID != "quiz-123" {
			t.Fatalf("quizId = %q", request.QuizID)
		}
		if len(request.Answers) != 3 || request.Answers[0] != 1 || request.Answers[1] != -1 || request.Answers[2] != 0 {
			t.Fatalf("answers = %v", request.Answers)
		}

		_, _ = w.Write([]byte(`{"score":{"_id":"score-1","quiz":"quiz-123","score":66.67,"totalQuestions":3,"correctAnswers":2}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	result, err := client.SubmitQuiz(context.Background(), "quiz-123", []int{1, -1, 0})
	if err != nil {
		t.Fatalf("SubmitQuiz failed: %v", err)
	}
	if result.ScoreID != "score-1" || result.QuizID != "quiz-123" || result.CorrectAnswers != 2 || result.TotalQuestions != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestListScoresAcceptsPopulatedQuiz(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/scores" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"scores":[
			{"_id":"s1","quiz":{"_id":"quiz-1","title":"Capitals"},"score":100,"totalQuestions":2,"correctAnswers":2},
			{"_id":"s2","quiz":"quiz-2","score":0,"totalQuestions":1,"correctAnswers":0}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	scores, err := client.ListScores(context.Background())
	if err != nil {
		t.Fatalf("ListScores failed: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("score count = %d, want 2", len(scores))
	}
	if scores[0].QuizID != "quiz-1" || scores[0].QuizTitle != "Capitals" {
		t.Fatalf("unexpected first score: %+v", scores[0])
	}
	if scores[1].QuizID != "quiz-2" || scores[1].QuizTitle != "" {
		t.Fatalf("unexpected second score: %+v", scores[1])
	}
}

func TestListLibrary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"_id":"quiz-1","title":"Capitals","description":"Europe","time":5}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	entries, err := client.ListLibrary(context.Background())
	if err != nil {
		t.Fatalf("ListLibrary failed: %v", err)
	}
	if len(entries) != 1 || entries[0].QuizID != "quiz-1" || entries[0].TimeMinutes != 5 {
		t.Fatalf("unexpected library: %+v", entries)
	}
}

func TestWithAuthTokenLeavesCallerClientUntouched(t *testing.T) {
	var seen []string
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = append(seen, r.Header.Get("Authorization"))
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"scores":[]}`)),
			Header:     make(http.Header),
		}, nil
	})
	shared := &http.Client{Transport: transport}

	authed := NewClient("http://quiz.test", shared, WithAuthToken("secret"))
	plain := NewClient("http://quiz.test", shared)

	if _, err := authed.ListScores(context.Background()); err != nil {
		t.Fatalf("authed ListScores failed: %v", err)
	}
	if _, err := plain.ListScores(context.Background()); err != nil {
		t.Fatalf("plain ListScores failed: %v", err)
	}

	if len(seen) != 2 || seen[0] != "Bearer secret" || seen[1] != "" {
		t.Fatalf("authorization headers = %q", seen)
	}
	if _, ok := shared.Transport.(roundTripperFunc); !ok {
		t.Fatalf("caller transport was replaced: %T", shared.Transport)
	}
}
