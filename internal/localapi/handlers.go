package localapi

import (
	"errors"
	"net/http"

	"quiz-runner/internal/attempt"
)

func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Phase:  a.store.Read().Phase.String(),
	})
}

// HandleGetAttempt reports the active attempt. After a restart the screen
// is remounted on whatever attempt the store rehydrated.
func (a *API) HandleGetAttempt(w http.ResponseWriter, r *http.Request) {
	view, err := a.screen.View()
	if errors.Is(err, attempt.ErrNoQuizLoaded) && a.store.Read().InProgress() {
		view, err = a.screen.Resume(r.Context())
	}
	if err != nil {
		writeAttemptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse{View: view})
}

func (a *API) HandleOpenAttempt(w http.ResponseWriter, r *http.Request) {
	var request openAttemptRequest
	if err := decodeJSON(r, &request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	view, err := a.screen.Open(r.Context(), request.QuizID)
	if err != nil {
		writeAttemptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse{View: view})
}

func (a *API) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndexParam(r, "index")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var request answerRequest
	if err := decodeJSON(r, &request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if request.Option == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "option is required"})
		return
	}

	if err := a.screen.Answer(r.Context(), index, *request.Option); err != nil {
		writeAttemptError(w, err)
		return
	}
	a.writeView(w)
}

func (a *API) HandleSetCurrent(w http.ResponseWriter, r *http.Request) {
	var request currentRequest
	if err := decodeJSON(r, &request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if request.Index == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "index is required"})
		return
	}

	current, err := a.screen.Goto(r.Context(), *request.Index)
	if err != nil {
		writeAttemptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, currentResponse{Current: current})
}

// HandleSubmit submits the mounted attempt. The attempt is over after this
// call even when the backend rejects the submission.
func (a *API) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	score, err := a.screen.Submit(r.Context())
	if err != nil {
		writeAttemptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Score: score})
}

func (a *API) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial any
	if view, err := a.screen.View(); err == nil {
		initial = tickMessage(view.AttemptID, view.QuizID, view.Remaining)
	}
	a.hub.Serve(w, r, initial)
}

func (a *API) writeView(w http.ResponseWriter) {
	view, err := a.screen.View()
	if err != nil {
		writeAttemptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse{View: view})
}
