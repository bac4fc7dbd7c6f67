package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"quiz-runner/internal/quiz"
)

var ErrServiceUnavailable = errors.New("quiz backend unavailable")

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// Client talks to the quiz REST backend.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type ClientOption func(*Client)

const maxErrorBody = 64 << 10

// WithAuthToken sends token as a bearer credential on every request.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = strings.TrimSpace(token)
	}
}

type questionItem struct {
	ID            string   `json:"_id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
}

type quizItem struct {
	ID          string         `json:"_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Time        int            `json:"time"`
	Questions   []questionItem `json:"questions"`
}

type quizResponse struct {
	Quiz *quizItem `json:"quiz"`
}

type libraryResponse struct {
	Data []quizItem `json:"data"`
}

type scoreItem struct {
	ID             string          `json:"_id"`
	Quiz           json.RawMessage `json:"quiz"`
	Score          float64         `json:"score"`
	TotalQuestions int             `json:"totalQuestions"`
	CorrectAnswers int             `json:"correctAnswers"`
}

type scoreResponse struct {
	Score *scoreItem `json:"score"`
}

type scoresResponse struct {
	Scores []scoreItem `json:"scores"`
}

type submitRequest struct {
	QuizID  string `json:"quizId"`
	Answers []int  `json:"answers"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func NewClient(baseURL string, httpClient *http.Client, opts ...ClientOption) *Client {
	baseURL = strings.TrimSpace(baseURL)
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:5000"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.authToken != "" {
		// Copy so the caller's client keeps its own transport.
		authed := *c.httpClient
		authed.Transport = bearerTransport{token: c.authToken, base: c.httpClient.Transport}
		c.httpClient = &authed
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchQuiz loads a quiz from the user's library, answer key included.
func (c *Client) FetchQuiz(ctx context.Context, quizID string) (quiz.Quiz, error) {
	if strings.TrimSpace(quizID) == "" {
		return quiz.Quiz{}, errors.New("quiz_id is required")
	}

	var payload quizResponse
	path := "/api/quizzes/library/" + url.PathEscape(quizID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return quiz.Quiz{}, fmt.Errorf("%w: %s", quiz.ErrQuizNotFound, quizID)
		}
		return quiz.Quiz{}, err
	}
	if payload.Quiz == nil {
		return quiz.Quiz{}, fmt.Errorf("%w: %s", quiz.ErrQuizNotFound, quizID)
	}

	return toQuiz(*payload.Quiz, quizID), nil
}

func (c *Client) ListLibrary(ctx context.Context) ([]quiz.LibraryEntry, error) {
	var payload libraryResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/quizzes/library", nil, &payload); err != nil {
		return nil, err
	}

	entries := make([]quiz.LibraryEntry, 0, len(payload.Data))
	for _, item := range payload.Data {
		entries = append(entries, quiz.LibraryEntry{
			QuizID:      item.ID,
			Title:       item.Title,
			Description: item.Description,
			TimeMinutes: item.Time,
		})
	}
	return entries, nil
}

// SubmitQuiz sends the answer buffer for grading. Unanswered questions are
// sent as -1.
func (c *Client) SubmitQuiz(ctx context.Context, quizID string, answers []int) (quiz.ScoreResult, error) {
	if strings.TrimSpace(quizID) == "" {
		return quiz.ScoreResult{}, errors.New("quiz_id is required")
	}
	if answers == nil {
		answers = []int{}
	}

	var payload scoreResponse
	request := submitRequest{QuizID: quizID, Answers: answers}
	if err := c.doJSON(ctx, http.MethodPost, "/api/scores/submit", request, &payload); err != nil {
		return quiz.ScoreResult{}, err
	}
	if payload.Score == nil {
		return quiz.ScoreResult{}, errors.New("submit response did not include a score")
	}

	result := toScoreResult(*payload.Score)
	if result.QuizID == "" {
		result.QuizID = quizID
	}
	return result, nil
}

func (c *Client) ListScores(ctx context.Context) ([]quiz.ScoreResult, error) {
	var payload scoresResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/scores", nil, &payload); err != nil {
		return nil, err
	}

	scores := make([]quiz.ScoreResult, 0, len(payload.Scores))
	for _, item := range payload.Scores {
		scores = append(scores, toScoreResult(item))
	}
	return scores, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) error {
	request, err := c.newRequest(ctx, method, path, requestBody)
	if err != nil {
		return err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer response.Body.Close()

	if err := checkResponse(response); err != nil {
		return err
	}
	if responseBody == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(responseBody)
}

func (c *Client) newRequest(ctx context.Context, method, path string, requestBody any) (*http.Request, error) {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return request, nil
}

// checkResponse turns a non-2xx reply into an *APIError, preferring the
// backend's {"message"} over the status line.
func checkResponse(response *http.Response) error {
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	var payload errorResponse
	_ = json.NewDecoder(io.LimitReader(response.Body, maxErrorBody)).Decode(&payload)
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		message = response.Status
	}
	return &APIError{StatusCode: response.StatusCode, Message: message}
}

// bearerTransport adds the configured token to every outgoing request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return base.RoundTrip(r)
}

func toQuiz(item quizItem, requestedID string) quiz.Quiz {
	quizID := item.ID
	if quizID == "" {
		quizID = requestedID
	}

	questions := make([]quiz.Question, 0, len(item.Questions))
	for _, question := range item.Questions {
		questions = append(questions, quiz.BuildQuestion(question.ID, question.Question, question.Options, question.CorrectOption))
	}

	return quiz.Quiz{
		QuizID:      quizID,
		Title:       item.Title,
		Description: item.Description,
		TimeMinutes: item.Time,
		Questions:   questions,
	}
}

// toScoreResult accepts the quiz reference either as a bare id or as a
// populated quiz document.
func toScoreResult(item scoreItem) quiz.ScoreResult {
	result := quiz.ScoreResult{
		ScoreID:        item.ID,
		Score:          item.Score,
		TotalQuestions: item.TotalQuestions,
		CorrectAnswers: item.CorrectAnswers,
	}

	if len(item.Quiz) == 0 {
		return result
	}
	var quizID string
	if err := json.Unmarshal(item.Quiz, &quizID); err == nil {
		result.QuizID = quizID
		return result
	}
	var populated quizItem
	if err := json.Unmarshal(item.Quiz, &populated); err == nil {
		result.QuizID = populated.ID
		result.QuizTitle = populated.Title
	}
	return result
}
