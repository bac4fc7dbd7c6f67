package localapi

import (
	"quiz-runner/internal/attempt"
	"quiz-runner/internal/progress"
)

type API struct {
	screen *attempt.Screen
	store  *progress.Store
	hub    *Hub
}

func NewAPI(screen *attempt.Screen, store *progress.Store, hub *Hub) *API {
	if hub == nil {
		hub = NewHub()
	}
	return &API{
		screen: screen,
		store:  store,
		hub:    hub,
	}
}
