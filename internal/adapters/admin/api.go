package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"newsroom/internal/adapters/bot"
	"newsroom/internal/domain"
	httpinfra "newsroom/internal/infra/http"
	"newsroom/internal/usecase/personas"
)

// Personas операции над персонами, доступные администратору.
type Personas interface {
	RunManual(ctx context.Context, personaID int64, action domain.Action) domain.ActionResult
	Submit(ctx context.Context, personaID int64, action domain.Action, requestedBy string) (domain.ActionJob, error)
	Result(ctx context.Context, jobID string) (domain.ActionResult, error)
	Delete(ctx context.Context, personaID int64) error
}

// Bots пересинхронизирует слушателя персоны.
type Bots interface {
	Sync(ctx context.Context, personaID int64) (bot.State, error)
}

// API административные ручки.
type API struct {
	personas Personas
	bots     Bots
	token    string
	log      zerolog.Logger
}

// NewAPI создаёт API. Пустой token закрывает доступ.
func NewAPI(p Personas, b Bots, token string, log zerolog.Logger) *API {
	return &API{personas: p, bots: b, token: token, log: log}
}

// Routes монтирует ручки под /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpinfra.AdminAuthMiddleware(a.token))
		api.Post("/personas/{id}/bot/sync", a.syncBot)
		api.Delete("/personas/{id}", a.deletePersona)
		api.Post("/personas/{id}/actions/{action}", a.runAction)
		api.Get("/jobs/{id}", a.jobResult)
	})
}

func (a *API) syncBot(w http.ResponseWriter, r *http.Request) {
	id, ok := personaID(w, r)
	if !ok {
		return
	}
	state, err := a.bots.Sync(r.Context(), id)
	if err != nil {
		a.log.Error().Err(err).Int64("persona", id).Str("request_id", httpinfra.RequestID(r)).Msg("admin: синхронизация бота не удалась")
		httpinfra.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"persona_id": id, "state": state.String()})
}

func (a *API) deletePersona(w http.ResponseWriter, r *http.Request) {
	id, ok := personaID(w, r)
	if !ok {
		return
	}
	if err := a.personas.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, "persona not found")
			return
		}
		a.log.Error().Err(err).Int64("persona", id).Msg("admin: удаление персоны не удалось")
		httpinfra.WriteError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) runAction(w http.ResponseWriter, r *http.Request) {
	id, ok := personaID(w, r)
	if !ok {
		return
	}
	action, err := domain.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Get("async") == "1" {
		job, err := a.personas.Submit(r.Context(), id, action, r.URL.Query().Get("by"))
		if err != nil {
			if errors.Is(err, personas.ErrQueueDisabled) {
				httpinfra.WriteError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			a.log.Error().Err(err).Int64("persona", id).Str("action", string(action)).Msg("admin: не удалось поставить задачу")
			httpinfra.WriteError(w, http.StatusInternalServerError, "enqueue failed")
			return
		}
		httpinfra.WriteJSON(w, http.StatusAccepted, job)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, a.personas.RunManual(r.Context(), id, action))
}

func (a *API) jobResult(w http.ResponseWriter, r *http.Request) {
	result, err := a.personas.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, "job not finished or expired")
			return
		}
		httpinfra.WriteError(w, http.StatusInternalServerError, "result unavailable")
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, result)
}

func personaID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid persona id")
		return 0, false
	}
	return id, true
}
