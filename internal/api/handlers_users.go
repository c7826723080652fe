package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (a *App) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.deps.Users.ListUsers(r.Context())
	if err != nil {
		a.log.Errorw("list users", "err", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, users, http.StatusOK)
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *App) createUser(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, "bad json", http.StatusBadRequest)
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || body.Password == "" {
		writeError(w, "username and password are required", http.StatusBadRequest)
		return
	}
	if _, err := a.deps.Users.CreateUser(r.Context(), body.Username, body.Email, body.Password); err != nil {
		a.log.Errorw("create user", "username", body.Username, "err", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "success"}, http.StatusOK)
}

func (a *App) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.deps.Users.DeleteUser(r.Context(), id); err != nil {
		a.log.Errorw("delete user", "id", id, "err", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "success"}, http.StatusOK)
}
