package handlers

import (
	"encoding/json"
	"net/http"

	"stylegen/internal/domain"
	"stylegen/internal/generation"
	"stylegen/internal/infra"
	"stylegen/internal/realtime"
)

// App holds the dependencies shared by the HTTP handlers.
type App struct {
	Generations *generation.Service
	Webhooks    *generation.Receiver
	Store       domain.GenerationStore
	Sockets     *realtime.SocketHandler
	Logger      *infra.Logger
}

type Deps struct {
	Generations *generation.Service
	Webhooks    *generation.Receiver
	Store       domain.GenerationStore
	Sockets     *realtime.SocketHandler
	Logger      *infra.Logger
}

func NewApp(d Deps) *App {
	return &App{
		Generations: d.Generations,
		Webhooks:    d.Webhooks,
		Store:       d.Store,
		Sockets:     d.Sockets,
		Logger:      infra.LoggerOrDiscard(d.Logger),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}
