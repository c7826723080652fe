package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stackmgr/internal/identity"
	"stackmgr/pkg/middleware"
)

type tokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

// postToken exchanges the dashboard's authorization code for a session.
func (a *App) postToken(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if err := decodeJSON(w, r, &body); err != nil || body.Code == "" {
		writeError(w, "code is required", http.StatusBadRequest)
		return
	}
	session, err := a.deps.Tokens.ExchangeCode(r.Context(), body.Code, body.RedirectURI)
	if err != nil {
		if identity.Rejected(err) {
			a.log.Warnw("code exchange rejected", "err", err)
			writeJSON(w, map[string]string{"status": "error"}, http.StatusUnauthorized)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "success", "auth": session}, http.StatusOK)
}

func (a *App) getMe(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFrom(r.Context())
	writeJSON(w, map[string]any{"status": "active", "user": u}, http.StatusOK)
}

func (a *App) getServices(w http.ResponseWriter, r *http.Request) {
	list, err := a.deps.Store.List(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list, http.StatusOK)
}

func (a *App) getServiceStatus(w http.ResponseWriter, r *http.Request) {
	list, err := a.deps.Store.List(r.Context())
	if err != nil {
		writeError(w, "Health check failed", http.StatusInternalServerError)
		return
	}
	slugs := make([]string, 0, len(list))
	for _, d := range list {
		slugs = append(slugs, d.Slug)
	}
	writeJSON(w, a.deps.Health.StatusAll(r.Context(), slugs), http.StatusOK)
}

func (a *App) getLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "container")
	if !a.deps.Catalog.LogsAllowed(name) {
		writeError(w, "Access denied to this container", http.StatusForbidden)
		return
	}
	logs, err := a.deps.Logs.Logs(r.Context(), name, a.cfg.LogTail)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"logs": logs}, http.StatusOK)
}
